package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/librarease/catalog/internal/imaging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// publishedAsset is a canonical asset on durable storage that no record
// references yet.
type publishedAsset struct {
	Name   string
	Colors []byte
}

func (a *publishedAsset) discard(ctx context.Context, u Usecase, reason string) {
	if a == nil {
		return
	}
	u.discardAsset(ctx, a.Name, reason)
}

var errAssetNotVisible = errors.New("published asset is not visible in storage")

// publishUpload runs validate → stage → convert → publish. Every failure
// leaves nothing behind in staging; a failed publish is compensated. A
// publish is only trusted once the asset can be found in storage.
func (u Usecase) publishUpload(ctx context.Context, up Upload) (imaging.Converted, error) {
	ctx, span := u.tracer.Start(ctx, "usecase.publishUpload")
	defer span.End()

	candidate := imaging.Candidate{
		Name:        up.Name,
		ContentType: up.ContentType,
		Size:        up.Size,
	}
	if err := imaging.CheckIntake(candidate); err != nil {
		return imaging.Converted{}, intakeError(err)
	}

	staged, err := u.stager.Stage(ctx, candidate, up.Body)
	if err != nil {
		return imaging.Converted{}, intakeError(err)
	}

	converted, err := u.converter.Convert(ctx, staged, up.Name)
	if err != nil {
		u.logger.WarnContext(ctx, "image conversion failed, discarding staged upload",
			slog.String("staged", staged), slog.String("err", err.Error()))
		_ = u.stager.Purge(staged)
		return imaging.Converted{}, InternalError(CodeConversionFailed, "convert image", err)
	}

	if err := u.fileStorageProvider.Publish(ctx, converted.Path, converted.Name); err != nil {
		_ = u.stager.Purge(converted.Path)
		u.discardAsset(ctx, converted.Name, "publish_failed")
		return imaging.Converted{}, InternalError(CodeStorageFailed, "store image", err)
	}
	if ok, err := u.fileStorageProvider.Exists(ctx, converted.Name); err != nil || !ok {
		if err == nil {
			err = errAssetNotVisible
		}
		u.logger.WarnContext(ctx, "published image could not be verified",
			slog.String("asset", converted.Name), slog.String("err", err.Error()))
		u.discardAsset(ctx, converted.Name, "publish_unverified")
		return imaging.Converted{}, InternalError(CodeStorageFailed, "verify stored image", err)
	}

	span.SetAttributes(attribute.String("asset.name", converted.Name))
	u.uploadCounter.Add(ctx, 1)
	return converted, nil
}

// replaceAsset removes old once a record has switched to next.
func (u Usecase) replaceAsset(ctx context.Context, old, next string) {
	if old == "" || old == next {
		return
	}
	u.discardAsset(ctx, old, "replaced")
}

// discardAsset removes an asset that is no longer, or never was,
// referenced. It runs detached from request cancellation. A failed removal
// is reported as an orphan instead of being returned.
func (u Usecase) discardAsset(ctx context.Context, name, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := u.fileStorageProvider.Remove(ctx, name); err != nil {
		u.reportOrphan(ctx, name, reason, err)
	}
}

func (u Usecase) reportOrphan(ctx context.Context, name, reason string, cause error) {
	u.logger.WarnContext(ctx, "orphaned asset",
		slog.String("asset", name),
		slog.String("reason", reason),
		slog.String("err", cause.Error()),
	)
	u.orphanCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))

	if u.orphanReporter == nil {
		return
	}
	if err := u.orphanReporter.EnqueueAssetCleanup(ctx, name, reason); err != nil {
		u.logger.ErrorContext(ctx, "failed to enqueue asset cleanup",
			slog.String("asset", name),
			slog.String("err", err.Error()),
		)
	}
}

// RemoveOrphanAsset deletes name from storage unless a record still
// references it.
func (u Usecase) RemoveOrphanAsset(ctx context.Context, name string) error {
	_, err := u.removeUnreferenced(ctx, name)
	return err
}

func (u Usecase) removeUnreferenced(ctx context.Context, name string) (bool, error) {
	referenced, err := u.repo.IsImageReferenced(ctx, name)
	if err != nil {
		return false, InternalError(CodeStoreFailed, "check asset reference", err)
	}
	if referenced {
		u.logger.InfoContext(ctx, "asset is referenced, keeping it", slog.String("asset", name))
		return false, nil
	}
	if err := u.fileStorageProvider.Remove(ctx, name); err != nil {
		return false, InternalError(CodeStorageFailed, "remove asset", err)
	}
	return true, nil
}

// SweepOrphanAssets removes stored assets older than grace that no record
// references. It returns the number of assets removed.
func (u Usecase) SweepOrphanAssets(ctx context.Context, grace time.Duration) (int, error) {
	var (
		assets []StoredAsset
		names  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assets, err = u.fileStorageProvider.ListAssets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		names, err = u.repo.ListImageNames(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, InternalError(CodeStoreFailed, "list assets", err)
	}

	referenced := make(map[string]struct{}, len(names))
	for _, n := range names {
		referenced[n] = struct{}{}
	}

	var (
		cutoff  = u.now().Add(-grace)
		removed int
		errs    []error
	)
	for _, a := range assets {
		if _, ok := referenced[a.Name]; ok || a.ModifiedAt.After(cutoff) {
			continue
		}
		// The reference set may be stale by now.
		ok, err := u.removeUnreferenced(ctx, a.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}

	u.logger.InfoContext(ctx, "orphan sweep finished",
		slog.Int("scanned", len(assets)),
		slog.Int("removed", removed),
	)
	return removed, errors.Join(errs...)
}

func intakeError(err error) error {
	var ve *imaging.ValidationError
	if !errors.As(err, &ve) {
		return InternalError(CodeStorageFailed, "stage upload", err)
	}
	switch {
	case errors.Is(ve, imaging.ErrUnsupportedType):
		return ValidationError(CodeUnsupportedMediaType, ve.Reason, ve)
	case errors.Is(ve, imaging.ErrFileTooLarge):
		return ValidationError(CodeFileTooLarge, ve.Reason, ve)
	case errors.Is(ve, imaging.ErrEmptyFile):
		return ValidationError(CodeEmptyFile, ve.Reason, ve)
	}
	return ValidationError(CodeInvalidInput, ve.Reason, ve)
}

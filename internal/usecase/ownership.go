package usecase

// Authorize permits a mutation of b only by its owner. The caller has
// already fetched b, so a mismatch is never reported as not found.
func Authorize(requesterID string, b Book) error {
	if requesterID == "" || b.OwnerID != requesterID {
		return AuthorizationError(CodeNotOwner, "only the owner of this book can change it")
	}
	return nil
}

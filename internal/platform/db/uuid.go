package db

import "github.com/google/uuid"

// UUIDArg canonicalises id for comparison against a uuid column, so the
// column can stay uncast and indexed. ok is false when id is not a UUID;
// such an id matches no row.
func UUIDArg(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

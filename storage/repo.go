package storage

import "fmt"

// Keys under which the token pair is mirrored.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Repo is tab-scoped key/value storage. Values live only as long as the repo does.
type Repo interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Record mirrors the session's token pair.
type Record struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (r Record) Complete() bool {
	return r.AccessToken != "" && r.RefreshToken != ""
}

// LoadRecord returns the stored token pair. ok is false unless both keys hold a value.
func LoadRecord(repo Repo) (Record, bool, error) {
	access, _, err := repo.Get(AccessTokenKey)
	if err != nil {
		return Record{}, false, fmt.Errorf("[storage LoadRecord] %s: %w", AccessTokenKey, err)
	}
	refresh, _, err := repo.Get(RefreshTokenKey)
	if err != nil {
		return Record{}, false, fmt.Errorf("[storage LoadRecord] %s: %w", RefreshTokenKey, err)
	}

	rec := Record{AccessToken: access, RefreshToken: refresh}
	if !rec.Complete() {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// SaveRecord writes both tokens. An incomplete record is rejected rather than half-written.
func SaveRecord(repo Repo, rec Record) error {
	if !rec.Complete() {
		return fmt.Errorf("[storage SaveRecord] incomplete token pair")
	}
	if err := repo.Set(AccessTokenKey, rec.AccessToken); err != nil {
		return fmt.Errorf("[storage SaveRecord] %s: %w", AccessTokenKey, err)
	}
	if err := repo.Set(RefreshTokenKey, rec.RefreshToken); err != nil {
		return fmt.Errorf("[storage SaveRecord] %s: %w", RefreshTokenKey, err)
	}
	return nil
}

// ClearRecord removes both tokens. Both removals are attempted even if the first fails.
func ClearRecord(repo Repo) error {
	errAccess := repo.Remove(AccessTokenKey)
	errRefresh := repo.Remove(RefreshTokenKey)
	if errAccess != nil {
		return fmt.Errorf("[storage ClearRecord] %s: %w", AccessTokenKey, errAccess)
	}
	if errRefresh != nil {
		return fmt.Errorf("[storage ClearRecord] %s: %w", RefreshTokenKey, errRefresh)
	}
	return nil
}

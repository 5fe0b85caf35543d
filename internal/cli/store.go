package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/julianstephens/habitual/internal/config"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/storage/postgres"
	"github.com/julianstephens/habitual/internal/storage/sqlite"
)

// KeyringTarget selects the PostgreSQL URL stored in the OS keyring.
const KeyringTarget = "keyring"

// OpenStore picks a backend for target: "keyring" or a PostgreSQL URL for
// PostgreSQL, a .json path for the flat file store, any other path for SQLite.
func OpenStore(target string) (storage.Store, error) {
	target = strings.TrimSpace(target)

	if target == KeyringTarget {
		connStr, err := keyring.GetConnectionString()
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, apperrors.WithHint(err, "store one with 'habitual keyring set <url>'")
			}
			return nil, err
		}
		return postgres.New(connStr), nil
	}

	if postgres.IsConnString(target) {
		if _, err := postgres.ValidateConnString(target); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, apperrors.WithHint(err,
					"keep the password in ~/.pgpass or PGPASSWORD, or store the full URL with 'habitual keyring set' and use --storage=keyring")
			}
			return nil, err
		}
		return postgres.New(target), nil
	}

	path, err := config.ExpandPath(target)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("no storage location configured")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return storage.NewJSONStore(path), nil
	}
	return sqlite.NewStore(path), nil
}

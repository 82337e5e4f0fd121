// Package syncstore owns repositories and their environment files. It is the
// single writer for both record types and enforces identity agreement and the
// quota policy table before any mutation becomes visible.
package syncstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/envsyncd/envsyncd/internal/db"
	"github.com/envsyncd/envsyncd/internal/identity"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/quota"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pagination defaults for ListRepositories.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	maxLimit     = 100
)

// Store persists repositories and environment files via GORM. All operations
// are authorization-scoped by the owner ID supplied by the caller; the store
// performs no authentication of its own.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// CreateRepository inserts a repository with a fresh opaque ID. The owner's
// repository count is checked and the row inserted inside one transaction, so
// two concurrent creations cannot both slip past the ceiling.
func (s *Store) CreateRepository(ctx context.Context, ownerID uint64, name string) (*models.Repository, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("syncstore: missing repository name")
	}

	repo := models.Repository{
		ID:          uuid.NewString(),
		OwnerUserID: ownerID,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the owner row so concurrent creations for the same user
		// serialize on the count check.
		var owner models.User
		if errFind := db.LockForUpdate(tx).First(&owner, ownerID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errFind
		}

		var count int64
		if errCount := tx.Model(&models.Repository{}).
			Where("owner_user_id = ?", ownerID).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		ceiling := quota.Limit(quota.MaxReposPerUser)
		if int(count) >= ceiling {
			return &QuotaExceededError{Quota: quota.MaxReposPerUser, Used: int(count), Ceiling: ceiling}
		}

		return tx.Create(&repo).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &repo, nil
}

// ListRepositories returns one page of the owner's repositories plus the total
// count, optionally filtered by a case-insensitive name search. Ordering is
// stable (creation time, ties broken by ID) so repeated calls with the same
// cursor stay consistent while the set grows at the tail.
func (s *Store) ListRepositories(ctx context.Context, ownerID uint64, search string, page, limit int) ([]models.Repository, int64, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 || limit > maxLimit {
		limit = DefaultLimit
	}

	q := s.db.WithContext(ctx).Model(&models.Repository{}).Where("owner_user_id = ?", ownerID)
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "name"), pattern)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.Repository
	if errFind := q.
		Order("created_at ASC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

// GetRepositorySummary returns the repository when it exists and belongs to
// ownerID. A missing repository and a repository owned by someone else yield
// the same ErrNotFound.
func (s *Store) GetRepositorySummary(ctx context.Context, ownerID uint64, repositoryID string) (*models.Repository, error) {
	var repo models.Repository
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", strings.TrimSpace(repositoryID), ownerID).
		First(&repo).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errFind
	}
	return &repo, nil
}

// UpsertEnvironmentFile creates or replaces the environment file identified by
// the derived ID for (repositoryID, fileName). Payload ceilings are checked
// before any write; the per-repository file ceiling only applies when the push
// would occupy a new slot. The insert-or-replace is a single atomic statement.
func (s *Store) UpsertEnvironmentFile(ctx context.Context, ownerID uint64, repositoryID, fileName, content string) (*models.EnvironmentFile, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, errors.New("syncstore: missing file name")
	}
	if ceiling := quota.Limit(quota.MaxEnvFileNameLength); len(fileName) > ceiling {
		return nil, &PayloadTooLargeError{Field: "file_name", Size: len(fileName), Ceiling: ceiling}
	}
	if ceiling := quota.Limit(quota.MaxEnvContentLength); len(content) > ceiling {
		return nil, &PayloadTooLargeError{Field: "content", Size: len(content), Ceiling: ceiling}
	}

	variableCount, errParse := countVariables(content)
	if errParse != nil {
		return nil, errParse
	}
	if ceiling := quota.Limit(quota.MaxEnvVarCount); variableCount > ceiling {
		return nil, &PayloadTooLargeError{Field: "variable_count", Size: variableCount, Ceiling: ceiling}
	}

	now := time.Now().UTC()
	record := models.EnvironmentFile{
		RepositoryID:  strings.TrimSpace(repositoryID),
		FileName:      fileName,
		Content:       content,
		VariableCount: variableCount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	record.ID = identity.ComputeID(record.RepositoryID, fileName)

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Ownership and existence collapse into one lookup; the row lock
		// also serializes concurrent pushes into the same repository.
		var repo models.Repository
		if errFind := db.LockForUpdate(tx).
			Where("id = ? AND owner_user_id = ?", record.RepositoryID, ownerID).
			First(&repo).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errFind
		}

		var existing int64
		if errExisting := tx.Model(&models.EnvironmentFile{}).
			Where("id = ?", record.ID).
			Count(&existing).Error; errExisting != nil {
			return errExisting
		}
		if existing == 0 {
			var count int64
			if errCount := tx.Model(&models.EnvironmentFile{}).
				Where("repository_id = ?", record.RepositoryID).
				Count(&count).Error; errCount != nil {
				return errCount
			}
			ceiling := quota.Limit(quota.MaxEnvsPerRepo)
			if int(count) >= ceiling {
				return &QuotaExceededError{Quota: quota.MaxEnvsPerRepo, Used: int(count), Ceiling: ceiling}
			}
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "variable_count", "updated_at"}),
		}).Create(&record).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &record, nil
}

// ListEnvironments returns all environment files of an owned repository. An
// empty slice is a valid result for an existing, empty repository.
func (s *Store) ListEnvironments(ctx context.Context, ownerID uint64, repositoryID string) ([]models.EnvironmentFile, error) {
	if _, errOwned := s.GetRepositorySummary(ctx, ownerID, repositoryID); errOwned != nil {
		return nil, errOwned
	}

	var rows []models.EnvironmentFile
	if errFind := s.db.WithContext(ctx).
		Where("repository_id = ?", strings.TrimSpace(repositoryID)).
		Order("file_name ASC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// DeleteRepository removes an owned repository together with its environment
// files. Missing and not-owned repositories are indistinguishable.
func (s *Store) DeleteRepository(ctx context.Context, ownerID uint64, repositoryID string) error {
	repositoryID = strings.TrimSpace(repositoryID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_user_id = ?", repositoryID, ownerID).
			Delete(&models.Repository{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("repository_id = ?", repositoryID).
			Delete(&models.EnvironmentFile{}).Error
	})
}

package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"codeboard/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	profileURLPattern = regexp.MustCompile(`^https://leetcode\.com/u/[A-Za-z0-9_-]+/?$`)
	profileIDPattern  = regexp.MustCompile(`^[\w-]+$`)
)

// Store upserts registrations keyed by external profile id
type Store interface {
	UpsertUserRecord(ctx context.Context, user *models.User) error
}

// Rejection explains why one entry of an import was skipped
type Rejection struct {
	Index     int    `json:"index"`
	ProfileID string `json:"profileId"`
	Reason    string `json:"reason"`
}

// Result is the outcome of an import
type Result struct {
	Imported int         `json:"imported"`
	Rejected []Rejection `json:"rejected"`
}

// NewValidator returns a validator that knows the profileurl and profileid tags.
// It panics if a tag cannot be registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "profileurl", profileURLPattern)
	mustRegister(v, "profileid", profileIDPattern)
	return v
}

func mustRegister(v *validator.Validate, tag string, pattern *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("registration: register %s validation: %v", tag, err))
	}
}

// Decode reads a JSON array of registration requests
func Decode(r io.Reader) ([]models.RegistrationRequest, error) {
	var requests []models.RegistrationRequest
	if err := json.NewDecoder(r).Decode(&requests); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}
	return requests, nil
}

// Importer validates registration requests and writes them to the store
type Importer struct {
	store     Store
	validator *validator.Validate
}

// NewImporter creates an importer
func NewImporter(store Store) *Importer {
	return &Importer{store: store, validator: NewValidator()}
}

// Import upserts every valid request. Invalid entries and duplicates within
// the batch are reported, not fatal; a store failure aborts the import.
func (im *Importer) Import(ctx context.Context, requests []models.RegistrationRequest) (*Result, error) {
	result := &Result{Rejected: []Rejection{}}
	seen := make(map[string]struct{}, len(requests))

	for i, req := range requests {
		req.Name = strings.TrimSpace(req.Name)
		req.ProfileURL = strings.TrimSpace(req.ProfileURL)
		req.ProfileID = strings.TrimSpace(req.ProfileID)
		req.Group = strings.TrimSpace(req.Group)

		if err := im.validator.Struct(&req); err != nil {
			result.Rejected = append(result.Rejected, Rejection{Index: i, ProfileID: req.ProfileID, Reason: err.Error()})
			continue
		}
		if _, dup := seen[req.ProfileID]; dup {
			result.Rejected = append(result.Rejected, Rejection{Index: i, ProfileID: req.ProfileID, Reason: "duplicate profileId in import"})
			continue
		}
		seen[req.ProfileID] = struct{}{}

		user := &models.User{
			DisplayName:        req.Name,
			ExternalProfileURL: req.ProfileURL,
			ExternalProfileID:  req.ProfileID,
			Group:              req.Group,
		}
		if err := im.store.UpsertUserRecord(ctx, user); err != nil {
			return result, fmt.Errorf("import %s: %w", req.ProfileID, err)
		}
		result.Imported++
	}

	return result, nil
}

package planning

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// VILLAS & USERS
// =============================================================================

// NewVilla is the input of CreateVilla.
type NewVilla struct {
	Name                string
	Color               string
	IsReinforcementPool bool
	DefaultTemplateID   string
}

// CreateVilla registers a villa.
func (s *Service) CreateVilla(ctx context.Context, in NewVilla) (*Villa, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "name is required")
	}
	if in.DefaultTemplateID != "" {
		if _, err := s.store.GetTemplate(ctx, in.DefaultTemplateID); err != nil {
			return nil, err
		}
	}
	v := Villa{
		ID:                  newID(),
		Name:                in.Name,
		Color:               in.Color,
		IsReinforcementPool: in.IsReinforcementPool,
		DefaultTemplateID:   strPtr(in.DefaultTemplateID),
		CreatedAt:           s.timestamp(),
	}
	if err := s.store.SaveVilla(ctx, v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVillas returns all villas.
func (s *Service) ListVillas(ctx context.Context) ([]Villa, error) {
	return s.store.ListVillas(ctx)
}

// DeleteVilla removes a villa that no shift or user references.
func (s *Service) DeleteVilla(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetVilla(ctx, id); err != nil {
			return err
		}
		shifts, users, err := st.CountVillaDependents(ctx, id)
		if err != nil {
			return err
		}
		if shifts > 0 || users > 0 {
			s.logger.Info("villa delete refused",
				zap.String("villa_id", id), zap.Int("shifts", shifts), zap.Int("users", users))
			return ErrVillaInUse
		}
		return st.DeleteVilla(ctx, id)
	})
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Name    string
	Email   string
	Roles   []string
	VillaID string
	Color   string
}

// CreateUser registers an educator or administrator.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "name is required")
	}
	if in.VillaID != "" {
		if _, err := s.store.GetVilla(ctx, in.VillaID); err != nil {
			return nil, err
		}
	}
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}
	u := User{
		ID:        newID(),
		Name:      in.Name,
		Email:     in.Email,
		Roles:     roles,
		VillaID:   strPtr(in.VillaID),
		Color:     in.Color,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.GetUser(ctx, id)
}

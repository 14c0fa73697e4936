package service

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/ports"
)

const (
	maxProfileImageBytes = 5 << 20
	defaultMissingLimit  = 50
	maxMissingLimit      = 200
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// CreatePet registers a new pet for the owner.
func (service *trackerService) CreatePet(ctx context.Context, in ports.CreatePetInput) (ports.PetView, error) {
	p, err := pet.NewTrackedPet(service.newID(), in.OwnerID, in.Profile)
	if err != nil {
		return ports.PetView{}, err
	}

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.pets.Create(txCtx, p)
	})
	if err != nil {
		service.logger.Error(ctx, "pet_create_failed", "Failed to create pet", err, map[string]any{
			"owner_id": in.OwnerID,
		})
		return ports.PetView{}, err
	}

	service.logger.Info(service.logger.WithPetID(ctx, p.ID), "pet_created", "Pet registered", map[string]any{
		"owner_id": p.OwnerID,
	})
	return service.view(*p), nil
}

// GetPet returns one of the owner's pets.
func (service *trackerService) GetPet(ctx context.Context, ownerID, petID string) (ports.PetView, error) {
	p, err := service.loadPet(ctx, ownerID, petID)
	if err != nil {
		return ports.PetView{}, err
	}
	return service.view(*p), nil
}

// ListPets returns the owner's pets sorted by name.
func (service *trackerService) ListPets(ctx context.Context, ownerID string) ([]ports.PetView, error) {
	var pets []pet.TrackedPet
	err := service.uow.WithinReadTx(ctx, func(txCtx context.Context) error {
		var err error
		pets, err = service.pets.ListByOwner(txCtx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(pets, func(a, b pet.TrackedPet) int {
		return cmp.Compare(a.Name, b.Name)
	})

	out := make([]ports.PetView, 0, len(pets))
	for _, p := range pets {
		out = append(out, service.view(p))
	}
	return out, nil
}

// UpdatePet edits profile fields. Changing the tracker device stops a running session,
// because it was polling the old device.
func (service *trackerService) UpdatePet(ctx context.Context, in ports.UpdatePetInput) (ports.PetView, error) {
	var (
		updated       *pet.TrackedPet
		deviceChanged bool
	)
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		p, err := service.pets.GetByID(txCtx, in.OwnerID, in.PetID)
		if err != nil {
			return err
		}

		profile := pet.Profile{
			Name:            valueOr(in.Name, p.Name),
			Species:         valueOr(in.Species, p.Species),
			Breed:           valueOr(in.Breed, p.Breed),
			Gender:          valueOr(in.Gender, p.Gender),
			Age:             valueOr(in.Age, p.Age),
			TrackerDeviceID: valueOr(in.TrackerDeviceID, p.TrackerDeviceID),
		}
		before := p.TrackerDeviceID
		if err := p.UpdateProfile(profile); err != nil {
			return err
		}
		if err := service.pets.UpdateProfile(txCtx, p); err != nil {
			return err
		}
		deviceChanged = before != p.TrackerDeviceID
		updated = p
		return nil
	})
	if err != nil {
		return ports.PetView{}, err
	}

	if deviceChanged {
		if s, ok := service.sessions.get(in.PetID); ok {
			s.Stop()
		}
	}
	return service.view(*updated), nil
}

// DeletePet stops the pet's session and removes the pet, its history and its photo.
func (service *trackerService) DeletePet(ctx context.Context, ownerID, petID string) error {
	p, err := service.loadPet(ctx, ownerID, petID)
	if err != nil {
		return err
	}

	service.sessions.remove(petID)

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := service.history.DeleteAll(txCtx, ownerID, petID); err != nil {
			return err
		}
		return service.pets.Delete(txCtx, ownerID, petID)
	})
	if err != nil {
		return err
	}

	if p.ProfileImageRef != "" && service.blobs != nil {
		if err := service.blobs.Delete(ctx, p.ProfileImageRef); err != nil {
			service.logger.Error(ctx, "pet_photo_delete_failed", "Failed to delete profile image", err, map[string]any{
				"key": p.ProfileImageRef,
			})
		}
	}

	service.logger.Info(service.logger.WithPetID(ctx, petID), "pet_deleted", "Pet deleted", nil)
	return nil
}

// UploadPetPhoto stores a profile image under petImages/<owner>/<pet>.<ext> and records the reference.
func (service *trackerService) UploadPetPhoto(ctx context.Context, in ports.UploadPhotoInput) (ports.PetView, error) {
	if service.blobs == nil {
		return ports.PetView{}, fmt.Errorf("blob store is not configured")
	}
	if _, err := service.loadPet(ctx, in.OwnerID, in.PetID); err != nil {
		return ports.PetView{}, err
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, maxProfileImageBytes+1))
	if err != nil {
		return ports.PetView{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxProfileImageBytes {
		return ports.PetView{}, ports.ErrImageTooLarge
	}

	// trust the bytes, not the declared header
	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok || len(data) == 0 {
		return ports.PetView{}, ports.ErrUnsupportedImage
	}

	key := fmt.Sprintf("petImages/%s/%s.%s", in.OwnerID, in.PetID, ext)
	if err := service.blobs.Put(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return ports.PetView{}, fmt.Errorf("store image: %w", err)
	}

	var (
		updated *pet.TrackedPet
		oldRef  string
	)
	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		p, err := service.pets.GetByID(txCtx, in.OwnerID, in.PetID)
		if err != nil {
			return err
		}
		oldRef = p.ProfileImageRef
		p.SetProfileImage(key)
		if err := service.pets.UpdateProfile(txCtx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return ports.PetView{}, err
	}

	if oldRef != "" && oldRef != key {
		if err := service.blobs.Delete(ctx, oldRef); err != nil {
			service.logger.Error(ctx, "pet_photo_cleanup_failed", "Failed to delete replaced profile image", err, map[string]any{
				"key": oldRef,
			})
		}
	}

	service.logger.Info(service.logger.WithPetID(ctx, in.PetID), "pet_photo_uploaded", "Profile image stored", map[string]any{
		"key":          key,
		"content_type": contentType,
		"bytes":        len(data),
	})
	return service.view(*updated), nil
}

// ListMissingPets returns the public projection of missing pets across all owners.
func (service *trackerService) ListMissingPets(ctx context.Context, limit int) ([]ports.MissingPetView, error) {
	if limit <= 0 {
		limit = defaultMissingLimit
	}
	limit = min(limit, maxMissingLimit)

	var pets []pet.TrackedPet
	err := service.uow.WithinReadTx(ctx, func(txCtx context.Context) error {
		var err error
		pets, err = service.pets.ListMissing(txCtx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]ports.MissingPetView, 0, len(pets))
	for _, p := range pets {
		// rows violating the missing invariant are skipped rather than exposed half-filled
		if !p.IsMissing || p.LastSeen == nil || p.LastSeenAt == nil || p.MissingNotes == nil {
			continue
		}
		v := ports.MissingPetView{
			PetID:      p.ID,
			Name:       p.Name,
			Species:    p.Species,
			Breed:      p.Breed,
			LastSeen:   *p.LastSeen,
			LastSeenAt: *p.LastSeenAt,
			Notes:      *p.MissingNotes,
		}
		if p.ProfileImageRef != "" && service.blobs != nil {
			v.ProfileImageURL = service.blobs.URL(p.ProfileImageRef)
		}
		out = append(out, v)
	}
	return out, nil
}

// WatchPets signals on every change to any of the owner's pets.
func (service *trackerService) WatchPets(ownerID string) (<-chan struct{}, func()) {
	if service.changes == nil {
		ch := make(chan struct{})
		return ch, func() {}
	}
	return service.changes.Subscribe(ownerID)
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return strings.TrimSpace(*v)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/ports"
)

const maxPhotoBody = 5<<20 + 1<<10

// --- Request DTOs (HTTP boundary) ---

type createPetRequest struct {
	Name            string `json:"name"`
	Species         string `json:"species"`
	Breed           string `json:"breed"`
	Gender          string `json:"gender"`
	Age             string `json:"age"`
	TrackerDeviceID string `json:"tracker_device_id"`
}

type updatePetRequest struct {
	Name            *string `json:"name"`
	Species         *string `json:"species"`
	Breed           *string `json:"breed"`
	Gender          *string `json:"gender"`
	Age             *string `json:"age"`
	TrackerDeviceID *string `json:"tracker_device_id"`
}

type petListResponse struct {
	Pets  []ports.PetView `json:"pets"`
	Count int             `json:"count"`
}

type missingPetsResponse struct {
	Pets  []ports.MissingPetView `json:"pets"`
	Count int                    `json:"count"`
}

// ----- Handler: GET /pets -----

func (handler *TrackerHTTPHandler) handleListPets(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	ownerID, ok := handler.owner(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	pets, err := handler.svc.ListPets(ctxWithTimeout, ownerID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	if pets == nil {
		pets = []ports.PetView{}
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, petListResponse{Pets: pets, Count: len(pets)})
}

// ----- Handler: POST /pets -----

func (handler *TrackerHTTPHandler) handleCreatePet(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	ownerID, ok := handler.owner(ctx, w, r)
	if !ok {
		return
	}

	var req createPetRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.CreatePet(ctxWithTimeout, ports.CreatePetInput{
		OwnerID: ownerID,
		Profile: pet.Profile{
			Name:            req.Name,
			Species:         req.Species,
			Breed:           req.Breed,
			Gender:          req.Gender,
			Age:             req.Age,
			TrackerDeviceID: req.TrackerDeviceID,
		},
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}

// ----- Handler: GET /pets/{pet_id} -----

func (handler *TrackerHTTPHandler) handleGetPet(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.GetPet(ctxWithTimeout, ownerID, petID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: PATCH /pets/{pet_id} -----

func (handler *TrackerHTTPHandler) handleUpdatePet(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	var req updatePetRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.UpdatePet(ctxWithTimeout, ports.UpdatePetInput{
		OwnerID:         ownerID,
		PetID:           petID,
		Name:            req.Name,
		Species:         req.Species,
		Breed:           req.Breed,
		Gender:          req.Gender,
		Age:             req.Age,
		TrackerDeviceID: req.TrackerDeviceID,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: DELETE /pets/{pet_id} -----

func (handler *TrackerHTTPHandler) handleDeletePet(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	if err := handler.svc.DeletePet(ctxWithTimeout, ownerID, petID); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----- Handler: PUT /pets/{pet_id}/photo -----

func (handler *TrackerHTTPHandler) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx, ownerID, petID, ok := handler.ownerAndPet(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	// the declared type is only a first filter; the service sniffs the bytes
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be an image type", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBody)
	defer r.Body.Close()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 2*serviceTimeout)
	defer cancel()

	res, err := handler.svc.UploadPetPhoto(ctxWithTimeout, ports.UploadPhotoInput{
		OwnerID:     ownerID,
		PetID:       petID,
		ContentType: contentType,
		Body:        r.Body,
	})
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctxWithTimeout, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: GET /missing-pets -----

func (handler *TrackerHTTPHandler) handleListMissingPets(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handler.httpError(ctx, w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	pets, err := handler.svc.ListMissingPets(ctxWithTimeout, limit)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	if pets == nil {
		pets = []ports.MissingPetView{}
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, missingPetsResponse{Pets: pets, Count: len(pets)})
}

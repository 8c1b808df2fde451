package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"profiledrive/internal/auth"
	"profiledrive/internal/domain"
	"profiledrive/internal/service"
)

type AssetService interface {
	BeginUpload(ctx context.Context, ownerID string, kind domain.AssetKind, subType string) (*service.UploadTicket, error)
	CompleteUpload(ctx context.Context, ownerID string, uploadID uuid.UUID) (*service.CompletionResult, error)
	Restore(ctx context.Context, ownerID string, kind domain.AssetKind) (*service.RestoreResult, error)
	DownloadCapability(ctx context.Context, ownerID string, kind domain.AssetKind, subType string) (*domain.Capability, error)
	Profile(ctx context.Context, ownerID string) (*service.ProfileView, error)
	History(ctx context.Context, ownerID string, kind domain.AssetKind, limit int) ([]domain.ArchiveEntry, error)
	PruneStale(ctx context.Context, ownerID string, entryID int64) error
}

type AccountService interface {
	DeleteOwner(ctx context.Context, ownerID string) (*service.DeletionReport, error)
}

type AssetHandler struct {
	assets   AssetService
	accounts AccountService
}

func NewAssetHandler(assets AssetService, accounts AccountService) *AssetHandler {
	return &AssetHandler{assets: assets, accounts: accounts}
}

// Routes регистрирует маршруты профиля; ожидает, что auth-middleware уже подключен
func (h *AssetHandler) Routes(r chi.Router) {
	r.Get("/profile", h.GetProfile)
	r.Delete("/profile", h.DeleteProfile)
	r.Post("/profile/uploads/{id}/complete", h.CompleteUpload)

	r.Route("/profile/picture", func(r chi.Router) {
		r.Get("/", h.DownloadPicture)
		r.Post("/uploads", h.BeginPictureUpload)
		r.Post("/restore", h.RestorePicture)
		r.Get("/archive", h.PictureHistory)
		r.Delete("/archive/{id}", h.PruneArchiveEntry)
	})

	r.Route("/profile/markscards/{type}", func(r chi.Router) {
		r.Get("/", h.DownloadMarksCard)
		r.Post("/uploads", h.BeginMarksCardUpload)
	})
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}

// GetProfile возвращает все слоты пользователя со ссылками на скачивание
func (h *AssetHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	view, err := h.assets.Profile(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AssetHandler) BeginPictureUpload(w http.ResponseWriter, r *http.Request) {
	h.beginUpload(w, r, domain.KindProfilePicture, "")
}

func (h *AssetHandler) BeginMarksCardUpload(w http.ResponseWriter, r *http.Request) {
	h.beginUpload(w, r, domain.KindMarksCard, chi.URLParam(r, "type"))
}

func (h *AssetHandler) beginUpload(w http.ResponseWriter, r *http.Request, kind domain.AssetKind, subType string) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	ticket, err := h.assets.BeginUpload(r.Context(), owner, kind, subType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// CompleteUpload - подтверждение клиентом, что загрузка по ссылке завершена
func (h *AssetHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	uploadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid upload id")
		return
	}

	result, err := h.assets.CompleteUpload(r.Context(), owner, uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AssetHandler) RestorePicture(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	result, err := h.assets.Restore(r.Context(), owner, domain.KindProfilePicture)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AssetHandler) DownloadPicture(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, domain.KindProfilePicture, "")
}

func (h *AssetHandler) DownloadMarksCard(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, domain.KindMarksCard, chi.URLParam(r, "type"))
}

func (h *AssetHandler) download(w http.ResponseWriter, r *http.Request, kind domain.AssetKind, subType string) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	capability, err := h.assets.DownloadCapability(r.Context(), owner, kind, subType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// ?redirect=1 сразу отправляет клиента по подписанной ссылке
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, capability.URL, http.StatusTemporaryRedirect)
		return
	}
	writeJSON(w, http.StatusOK, capability)
}

func (h *AssetHandler) PictureHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.assets.History(r.Context(), owner, domain.KindProfilePicture, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// PruneArchiveEntry удаляет запись архива, объект которой уже пропал из хранилища
func (h *AssetHandler) PruneArchiveEntry(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid archive entry id")
		return
	}

	if err := h.assets.PruneStale(r.Context(), owner, entryID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AssetHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	report, err := h.accounts.DeleteOwner(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

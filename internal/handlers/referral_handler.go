package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/cashquest/backend/internal/services"
)

// ReferralHandler exposes the referral program over HTTP.
type ReferralHandler struct {
	referrals *services.ReferralService
}

func NewReferralHandler(referrals *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

// GetSummary returns the caller's referral stats and invitees
// @Summary Get referral summary
// @Description Get referral code, share link, earnings and the list of invited users
// @Tags referrals
// @Produce json
// @Success 200 {object} map[string]interface{} "Referral summary"
// @Failure 401 {string} string "Unauthorized"
// @Router /referrals [get]
func (h *ReferralHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summary, err := h.referrals.Summary(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			services.SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[REFERRAL] Summary failed for user %d: %v", userID, err)
			services.SendErrorResponse(w, "Failed to fetch referral summary", http.StatusInternalServerError, nil)
		}
		return
	}

	referred, err := h.referrals.ListReferred(userID)
	if err != nil {
		log.Printf("[REFERRAL] Referred list failed for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch referral summary", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"summary":  summary,
		"referred": referred,
	})
}

// GetInviteQR renders the caller's invite link as a PNG QR code
// @Summary Get invite QR code
// @Description Render the caller's referral link as a PNG QR code
// @Tags referrals
// @Produce png
// @Param size query int false "Image size in pixels (default 256, max 1024)"
// @Success 200 {file} binary "PNG image"
// @Failure 401 {string} string "Unauthorized"
// @Router /referrals/qr [get]
func (h *ReferralHandler) GetInviteQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	png, err := h.referrals.InviteQR(userID, size)
	if err != nil {
		if err == sql.ErrNoRows {
			services.SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[REFERRAL] QR render failed for user %d: %v", userID, err)
			services.SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

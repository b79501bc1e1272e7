package services

import (
	"database/sql"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

// ReferralSummary is a user's referral program view.
type ReferralSummary struct {
	RefCode   string `json:"ref_code"`
	ShareLink string `json:"share_link"`
	Count     int    `json:"count"`
	Earnings  int64  `json:"earnings"` // in paise
}

// ReferredUser is one invitee in the referral list.
type ReferredUser struct {
	Name      string `json:"name"`
	Verified  bool   `json:"verified"`
	Completed int    `json:"tasks_completed"`
}

// ReferralService reads referral stats and renders the shareable
// invite QR code.
type ReferralService struct {
	db *sql.DB
}

func NewReferralService(db *sql.DB) *ReferralService {
	return &ReferralService{db: db}
}

// ShareLink builds the invite URL carried by the QR code.
func (s *ReferralService) ShareLink(refCode string) string {
	return fmt.Sprintf("%s/signup?ref=%s", viper.GetString("app.base_url"), refCode)
}

func (s *ReferralService) Summary(userID int) (*ReferralSummary, error) {
	var summary ReferralSummary
	err := s.db.QueryRow("SELECT ref_code, referral_count, referral_earnings FROM users WHERE id = $1",
		userID).Scan(&summary.RefCode, &summary.Count, &summary.Earnings)
	if err != nil {
		return nil, err
	}

	summary.ShareLink = s.ShareLink(summary.RefCode)
	return &summary, nil
}

func (s *ReferralService) ListReferred(userID int) ([]ReferredUser, error) {
	rows, err := s.db.Query(`
		SELECT name, verified, tasks_completed
		FROM users
		WHERE referrer_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	referred := []ReferredUser{}
	for rows.Next() {
		var u ReferredUser
		if err := rows.Scan(&u.Name, &u.Verified, &u.Completed); err != nil {
			return nil, err
		}
		referred = append(referred, u)
	}
	return referred, nil
}

// InviteQR renders the user's invite link as a PNG QR code.
func (s *ReferralService) InviteQR(userID, size int) ([]byte, error) {
	var refCode string
	err := s.db.QueryRow("SELECT ref_code FROM users WHERE id = $1", userID).Scan(&refCode)
	if err != nil {
		return nil, err
	}

	if size <= 0 || size > 1024 {
		size = 256
	}

	return qrcode.Encode(s.ShareLink(refCode), qrcode.Medium, size)
}

package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jrsteele09/findcourse-client/centers"
	"github.com/jrsteele09/findcourse-client/findcourse"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/internal/utils"
	"github.com/jrsteele09/findcourse-client/users"
)

const maxUploadBytes = 5 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"message": msg, "statusCode": status})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"data": data})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds users.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := users.ValidateCredentials(creds); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		a, err := s.accounts.byEmail(creds.Email)
		if err != nil || !users.CheckPasswordHash(creds.Password, a.passwordHash) {
			writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}

		access, err := s.issueAccessToken(a.profile)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, findcourse.TokenPair{
			AccessToken:  access,
			RefreshToken: s.refresh.issue(a.profile.ID),
		})
	}
}

func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
			writeMessage(w, http.StatusBadRequest, "refreshToken is required")
			return
		}

		userID, ok := s.refresh.lookup(body.RefreshToken)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		a, err := s.accounts.byID(userID)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}

		access, err := s.issueAccessToken(a.profile)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
	}
}

func (s *Server) MyDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.accounts.byID(userIDFrom(r.Context()))
		if err != nil {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		profile := a.profile

		s.lock.Lock()
		if s.hideRole {
			profile.Role = ""
		}
		s.lock.Unlock()

		writeData(w, http.StatusOK, profile)
	}
}

// pathUserID reads {id} and checks it belongs to the caller.
func pathUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	if id != userIDFrom(r.Context()) {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return 0, false
	}
	return id, true
}

func (s *Server) UpdateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}

		var update users.ProfileUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if update.Empty() {
			writeMessage(w, http.StatusBadRequest, "Nothing to update")
			return
		}
		if update.Email != nil && strings.TrimSpace(utils.Value(update.Email)) == "" {
			writeMessage(w, http.StatusBadRequest, "Email cannot be empty")
			return
		}

		profile, err := s.accounts.update(id, update)
		switch {
		case apperrors.Is(err, apperrors.ErrValidation):
			writeMessage(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		writeData(w, http.StatusOK, profile)
	}
}

func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}
		if err := s.accounts.delete(id); err != nil {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		s.refresh.revokeUser(id)

		s.lock.Lock()
		kept := s.liked[:0]
		for _, item := range s.liked {
			if item.UserID != id {
				kept = append(kept, item)
			}
		}
		s.liked = kept
		s.lock.Unlock()

		writeMessage(w, http.StatusOK, "User deleted")
	}
}

func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("image")
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "image is required")
			return
		}
		defer file.Close()

		name := fmt.Sprintf("%d-%s", s.clock.Now().UnixMilli(), filepath.Base(header.Filename))

		s.lock.Lock()
		s.uploads = append(s.uploads, name)
		s.lock.Unlock()

		writeData(w, http.StatusCreated, name)
	}
}

func (s *Server) LikedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFrom(r.Context())

		s.lock.Lock()
		items := make([]findcourse.LikedItem, 0)
		for _, item := range s.liked {
			if item.UserID == userID {
				items = append(items, item)
			}
		}
		s.lock.Unlock()

		writeData(w, http.StatusOK, items)
	}
}

func (s *Server) LikeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CenterID int `json:"centerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CenterID <= 0 {
			writeMessage(w, http.StatusBadRequest, "centerId is required")
			return
		}
		userID := userIDFrom(r.Context())

		s.lock.Lock()
		defer s.lock.Unlock()

		if !s.hasCenterLocked(body.CenterID) {
			writeMessage(w, http.StatusNotFound, "Center not found")
			return
		}
		for _, item := range s.liked {
			if item.UserID == userID && item.CenterID == body.CenterID {
				writeMessage(w, http.StatusConflict, "Already liked")
				return
			}
		}

		item := findcourse.LikedItem{ID: s.nextLikeID, CenterID: body.CenterID, UserID: userID}
		s.nextLikeID++
		s.liked = append(s.liked, item)
		writeData(w, http.StatusCreated, item)
	}
}

func (s *Server) UnlikeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid id")
			return
		}
		userID := userIDFrom(r.Context())

		s.lock.Lock()
		defer s.lock.Unlock()

		for i, item := range s.liked {
			if item.ID == id && item.UserID == userID {
				s.liked = append(s.liked[:i], s.liked[i+1:]...)
				writeMessage(w, http.StatusOK, "Removed")
				return
			}
		}
		writeMessage(w, http.StatusNotFound, "Liked item not found")
	}
}

func (s *Server) CentersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		list := append(make([]centers.Center, 0, len(s.centers)), s.centers...)
		s.lock.Unlock()

		writeData(w, http.StatusOK, list)
	}
}

// hasCenterLocked reports whether id is a known center. With no centers
// configured every id is accepted.
func (s *Server) hasCenterLocked(id int) bool {
	if len(s.centers) == 0 {
		return true
	}
	for _, c := range s.centers {
		if c.ID == id {
			return true
		}
	}
	return false
}

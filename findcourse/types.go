package findcourse

import "encoding/json"

// TokenPair is the body returned by the login and refresh endpoints. Refresh
// responses usually carry only AccessToken.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LikedItem is one entry of the user's liked centers.
type LikedItem struct {
	ID       int `json:"id"`
	CenterID int `json:"centerId"`
	UserID   int `json:"userId,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type likeRequest struct {
	CenterID int `json:"centerId"`
}

// envelope is the {data: ...} wrapper most endpoints use.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// errorBody covers the error shapes the API returns; message may be a string
// or a list of validation messages.
type errorBody struct {
	Message any    `json:"message"`
	Error   string `json:"error"`
}

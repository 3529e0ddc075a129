package models

import "time"

// User represents an account within the ClipVault service.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Video is a stored media asset owned by exactly one user. Trim and merge
// outputs are persisted as new rows; source videos are never mutated.
type Video struct {
	ID        int64
	OwnerID   int64
	FilePath  string
	CreatedAt time.Time
}

// AccessGrant pairs a video with an opaque share token and an absolute
// expiry. At most one grant exists per video: enabling access again rotates
// the token and expiry in place, so holders of the old token lose access.
type AccessGrant struct {
	VideoID int64
	Token   string
	Expiry  time.Time
}

package models

// AttendanceResult is returned by a successful daily attendance claim
type AttendanceResult struct {
	UserID     int64  `json:"user_id"`
	Date       string `json:"date"`
	Reward     int64  `json:"reward"`
	NewBalance int64  `json:"new_balance"`
}

// TransferResult contains the result of a peer to peer transfer
type TransferResult struct {
	FromUserID       int64 `json:"from_user_id"`
	ToUserID         int64 `json:"to_user_id"`
	Amount           int64 `json:"amount"`
	SenderBalance    int64 `json:"sender_balance"`
	RecipientBalance int64 `json:"recipient_balance"`
}

// RevokeResult reports how much was actually taken. Revocation never drives a
// balance below zero, so Revoked can be less than Requested.
type RevokeResult struct {
	UserID     int64 `json:"user_id"`
	Requested  int64 `json:"requested"`
	Revoked    int64 `json:"revoked"`
	NewBalance int64 `json:"new_balance"`
}

package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload issued by the authentication collaborator.
// FAMILY tokens carry the student they act for; LEADER tokens carry only the school.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	SchoolID  string   `json:"school_id"`
	StudentID string   `json:"student_id,omitempty"`
	jwt.RegisteredClaims
}

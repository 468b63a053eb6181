package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type account struct {
	Username string `validate:"required,min=3,max=30,username" label:"Username"`
	Password string `validate:"required,min=8,password" label:"Password"`
}

type edition struct {
	Title string `validate:"required" label:"Title"`
	Year  int    `validate:"gte=1800,notfuture" label:"Published year"`
	ISBN  string `validate:"omitempty,len=13"`
}

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestStruct_Account(t *testing.T) {
	const password = "Secret123"

	tests := []struct {
		name     string
		username string
		password string
		wantMsg  string
	}{
		{name: "valid", username: "reader_01", password: password},
		{name: "empty username", username: "", password: password, wantMsg: "Username is required"},
		{name: "too short", username: "ab", password: password, wantMsg: "Username must be between 3 and 30 characters"},
		{name: "too long", username: "abcdefghijklmnopqrstuvwxyz12345", password: password, wantMsg: "Username must be between 3 and 30 characters"},
		{name: "bad chars", username: "bad name", password: password, wantMsg: "Username can only contain letters, numbers, and underscores"},
		{name: "empty password", username: "alice", password: "", wantMsg: "Password is required"},
		{name: "short password", username: "alice", password: "Ab1", wantMsg: "Password must be at least 8 characters long"},
		{name: "no digit", username: "alice", password: "SecretSecret", wantMsg: "Password must contain at least one uppercase letter, one lowercase letter, and one number"},
		{name: "no upper", username: "alice", password: "secret123", wantMsg: "Password must contain at least one uppercase letter, one lowercase letter, and one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(account{Username: tt.username, Password: tt.password}, now)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
			assert.EqualError(t, err, tt.wantMsg)
		})
	}
}

func TestStruct_PublishedYear(t *testing.T) {
	tests := []struct {
		name    string
		in      edition
		wantMsg string
	}{
		{name: "valid", in: edition{Title: "Dune", Year: 1965}},
		{name: "no title", in: edition{Year: 1965}, wantMsg: "Title is required"},
		{name: "too old", in: edition{Title: "t", Year: 1799}, wantMsg: "Invalid published year"},
		{name: "future", in: edition{Title: "t", Year: 2026}, wantMsg: "Invalid published year"},
		{name: "current year", in: edition{Title: "t", Year: 2025}},
		{name: "untranslated rule", in: edition{Title: "t", Year: 2000, ISBN: "123"}, wantMsg: "ISBN is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in, now)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
			assert.EqualError(t, err, tt.wantMsg)
		})
	}
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("Note content", "remember chapter 3", "required"))

	err := Var("Note content", "", "required")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.EqualError(t, err, "Note content is required")
}

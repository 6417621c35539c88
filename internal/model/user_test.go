package model

import "testing"

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"username takes priority", User{FirstName: "Rahim", Username: "rahim_bd"}, "rahim_bd"},
		{"full name", User{FirstName: "Rahim", LastName: "Uddin"}, "Rahim Uddin"},
		{"first name only", User{FirstName: "Rahim"}, "Rahim"},
		{"empty", User{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

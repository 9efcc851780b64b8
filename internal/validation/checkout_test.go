package validation

import "testing"

func TestFirstMissing(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
		want   string
	}{
		{
			name: "all present",
			fields: []Field{
				{Name: "email", Value: "a@b.com"},
				{Name: "city", Value: "Nairobi"},
			},
			want: "",
		},
		{
			name: "whitespace only is missing",
			fields: []Field{
				{Name: "email", Value: "a@b.com"},
				{Name: "address", Value: "   "},
				{Name: "city", Value: ""},
			},
			want: "address",
		},
		{
			name:   "empty list",
			fields: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstMissing(tt.fields); got != tt.want {
				t.Fatalf("FirstMissing() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"user@example.com", "first.last@shop.co.ke"}
	invalid := []string{"", "not-an-email", "user@", "@example.com", "user name@example.com"}

	for _, s := range valid {
		if !IsValidEmail(s) {
			t.Fatalf("IsValidEmail(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if IsValidEmail(s) {
			t.Fatalf("IsValidEmail(%q) = true, want false", s)
		}
	}
}

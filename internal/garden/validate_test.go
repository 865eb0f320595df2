package garden

import (
	"errors"
	"testing"

	"github.com/conorfennell/leafcare/internal/domain"
)

func TestClockValidation(t *testing.T) {
	s := &Service{validate: newValidator()}

	testCases := []struct {
		clock   string
		wantErr bool
	}{
		{clock: "00:00"},
		{clock: "07:30"},
		{clock: "23:59"},
		{clock: "24:00", wantErr: true},
		{clock: "7:30", wantErr: true},
		{clock: "07:60", wantErr: true},
		{clock: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.clock, func(t *testing.T) {
			err := s.check(domain.NewReminder{PlantID: "p1", Type: domain.Water, Frequency: domain.Daily, Time: tc.clock})
			if tc.wantErr && !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid for %q, but got %v", tc.clock, err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected %q to be accepted, but got %v", tc.clock, err)
			}
		})
	}
}

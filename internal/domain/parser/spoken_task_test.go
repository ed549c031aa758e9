package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday afternoon, a fixed reference point for every relative date.
var now = time.Date(2026, time.September, 2, 11, 30, 0, 0, time.Local)

func TestParseSpokenTaskExamples(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		title      string
		when       *time.Time
	}{
		{
			name:       "remind me with tomorrow and time",
			transcript: "remind me to call mom tomorrow at 3pm",
			title:      "Call mom",
			when:       at(2026, time.September, 3, 15, 0),
		},
		{
			name:       "create task without date",
			transcript: "create task: buy groceries",
			title:      "Buy groceries",
		},
		{
			name:       "schedule with month day",
			transcript: "schedule dentist appointment on Oct 5 at 3pm",
			title:      "Dentist appointment",
			when:       at(2026, time.October, 5, 15, 0),
		},
		{
			name:       "empty transcript",
			transcript: "",
			title:      "Untitled task",
		},
		{
			name:       "tonight default evening time",
			transcript: "add water the plants tonight",
			title:      "Water the plants",
			when:       at(2026, time.September, 2, 20, 0),
		},
		{
			name:       "today default afternoon time",
			transcript: "new task finish the report today",
			title:      "Finish the report",
			when:       at(2026, time.September, 2, 14, 0),
		},
		{
			name:       "next week",
			transcript: "schedule team review next week",
			title:      "Team review",
			when:       at(2026, time.September, 9, 9, 0),
		},
		{
			name:       "next friday",
			transcript: "remind me to submit timesheet next friday",
			title:      "Submit timesheet",
			when:       at(2026, time.September, 4, 9, 0),
		},
		{
			name:       "next wednesday skips today",
			transcript: "set reminder to rotate backups next wednesday",
			title:      "Rotate backups",
			when:       at(2026, time.September, 9, 9, 0),
		},
		{
			name:       "numeric date",
			transcript: "add pay rent on 10/1",
			title:      "Pay rent",
			when:       at(2026, time.October, 1, 9, 0),
		},
		{
			name:       "bare time still ahead today",
			transcript: "remind me to stretch at 5pm",
			title:      "Stretch",
			when:       at(2026, time.September, 2, 17, 0),
		},
		{
			name:       "bare time already passed rolls to tomorrow",
			transcript: "remind me to stand up at 8am",
			title:      "Stand up",
			when:       at(2026, time.September, 3, 8, 0),
		},
		{
			name:       "noon is not midnight",
			transcript: "add lunch with sam tomorrow at 12pm",
			title:      "Lunch with sam",
			when:       at(2026, time.September, 3, 12, 0),
		},
		{
			name:       "twelve am is midnight",
			transcript: "add server maintenance tomorrow at 12am",
			title:      "Server maintenance",
			when:       at(2026, time.September, 3, 0, 0),
		},
		{
			name:       "minutes preserved",
			transcript: "schedule standup tomorrow at 9:45am",
			title:      "Standup",
			when:       at(2026, time.September, 3, 9, 45),
		},
		{
			name:       "unparsable date stays nil",
			transcript: "add review notes whenever possible",
			title:      "Review notes whenever possible",
		},
		{
			name:       "command words only",
			transcript: "create task",
			title:      "Untitled task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSpokenTask(tt.transcript, now)
			assert.Equal(t, tt.title, got.Title)
			assert.Equal(t, tt.transcript, got.RawTranscript)
			if tt.when == nil {
				assert.Nil(t, got.When)
			} else {
				require.NotNil(t, got.When)
				assert.Equal(t, *tt.when, *got.When)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	a := ParseSpokenTask("remind me to call mom tomorrow at 3pm", now)
	b := ParseSpokenTask("remind me to call mom tomorrow at 3pm", now)
	assert.Equal(t, a, b)
}

func TestTomorrowWinsOverOtherQualifiers(t *testing.T) {
	// Precedence: tomorrow beats a weekday mention later in the text.
	got := ParseSpokenTask("add prep for next monday review tomorrow", now)
	require.NotNil(t, got.When)
	assert.Equal(t, 3, got.When.Day())
}

func at(year int, month time.Month, day, hour, minute int) *time.Time {
	v := time.Date(year, month, day, hour, minute, 0, 0, time.Local)
	return &v
}

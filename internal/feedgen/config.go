package feedgen

import (
	"time"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
)

// Config holds configuration for a feed run.
type Config struct {
	BaseURL         string        // Base URL of the service
	Users           int           // Number of synthetic users
	SkillsPerUser   int           // Skills inserted per user
	UpdatesPerUser  int           // Proficiency updates per user
	ProjectsPerUser int           // Projects owned per user
	Replays         int           // Envelopes resent to exercise deduplication
	Role            string        // Role the gap check runs against
	Seed            uint64        // Seed for the generated values
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	Settle          time.Duration // How long views may take to converge
	OutputFile      string        // Output file for envelopes
	LogFile         string        // Log file for run output
	Verbose         bool          // Enable verbose logging
}

// UserPlan is one user's ordered envelopes and the state they lead to.
type UserPlan struct {
	UserID    string
	Envelopes []feed.Envelope
	Skills    map[string]model.Skill
	Projects  map[string]model.Project
}

// Stats holds run statistics.
type Stats struct {
	EnvelopesGenerated int
	EnvelopesSubmitted int
	EnvelopesAccepted  int
	EnvelopesDuplicate int
	EnvelopesFailed    int
	UsersWatched       int
	UsersVerified      int
	UsersMismatched    int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

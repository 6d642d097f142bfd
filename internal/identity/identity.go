package identity

import (
	"fmt"
	"os"
)

// Resolve picks a default occupant name when the caller does not pass one:
// OPENPARK_OCCUPANT, then the login user, then common CI job variables,
// falling back to the hostname.
func Resolve() string {
	checks := []struct {
		env    string
		prefix string
	}{
		{"OPENPARK_OCCUPANT", ""},
		{"USER", ""},
		{"CI_JOB_ID", "gitlab-job-"},
		{"GITHUB_RUN_ID", "github-run-"},
		{"BUILD_ID", "jenkins-"},
	}

	for _, c := range checks {
		if v := os.Getenv(c.env); v != "" {
			return c.prefix + v
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("host-%s", hostname)
}

// InstanceID names this process for leader election. It is stable for a host
// and pid so restarts show up as new instances in logs.
func InstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

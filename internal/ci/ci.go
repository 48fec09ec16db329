// Package ci detects the continuous integration environment the tool runs in
package ci

import (
	"os"
	"strconv"
	"strings"
)

// Metadata describes the CI context of a run. Outside CI every field is empty.
type Metadata struct {
	IsCI     bool   `json:"isCi"`
	Name     string `json:"name,omitempty"`
	Service  string `json:"service,omitempty"`
	Commit   string `json:"commit,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Build    string `json:"build,omitempty"`
	BuildURL string `json:"buildUrl,omitempty"`
	Job      string `json:"job,omitempty"`
	JobURL   string `json:"jobUrl,omitempty"`
	IsPR     bool   `json:"isPr"`
	PR       string `json:"pr,omitempty"`
	PRBranch string `json:"prBranch,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Root     string `json:"root,omitempty"`
}

// LookupFunc reads an environment variable
type LookupFunc func(key string) string

// provider detects and reads one CI service
type provider struct {
	service string
	name    string
	detect  func(env LookupFunc) bool
	read    func(env LookupFunc, m *Metadata)
}

// providers are checked in order; the generic CI=true fallback is handled last
//
//nolint:gochecknoglobals // static provider table
var providers = []provider{
	{
		service: "github",
		name:    "GitHub Actions",
		detect:  func(env LookupFunc) bool { return env("GITHUB_ACTIONS") == "true" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("GITHUB_SHA")
			m.Slug = env("GITHUB_REPOSITORY")
			m.Root = env("GITHUB_WORKSPACE")
			m.Build = env("GITHUB_RUN_ID")
			m.Job = env("GITHUB_JOB")
			if server, slug := env("GITHUB_SERVER_URL"), env("GITHUB_REPOSITORY"); server != "" && slug != "" && m.Build != "" {
				m.BuildURL = server + "/" + slug + "/actions/runs/" + m.Build
			}
			ref := env("GITHUB_REF")
			m.IsPR = env("GITHUB_EVENT_NAME") == "pull_request" || env("GITHUB_EVENT_NAME") == "pull_request_target"
			if m.IsPR {
				m.Branch = env("GITHUB_BASE_REF")
				m.PRBranch = env("GITHUB_HEAD_REF")
				m.PR = prNumberFromRef(ref)
			} else {
				m.Branch = strings.TrimPrefix(ref, "refs/heads/")
			}
			if strings.HasPrefix(ref, "refs/tags/") {
				m.Tag = strings.TrimPrefix(ref, "refs/tags/")
				m.Branch = ""
			}
		},
	},
	{
		service: "gitlab",
		name:    "GitLab CI/CD",
		detect:  func(env LookupFunc) bool { return env("GITLAB_CI") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("CI_COMMIT_SHA")
			m.Tag = env("CI_COMMIT_TAG")
			m.Build = env("CI_PIPELINE_ID")
			m.BuildURL = env("CI_PIPELINE_URL")
			m.Job = env("CI_JOB_ID")
			m.JobURL = env("CI_JOB_URL")
			m.Slug = env("CI_PROJECT_PATH")
			m.Root = env("CI_PROJECT_DIR")
			m.PR = env("CI_MERGE_REQUEST_IID")
			m.IsPR = m.PR != ""
			if m.IsPR {
				m.Branch = env("CI_MERGE_REQUEST_TARGET_BRANCH_NAME")
				m.PRBranch = env("CI_MERGE_REQUEST_SOURCE_BRANCH_NAME")
			} else {
				m.Branch = env("CI_COMMIT_REF_NAME")
			}
		},
	},
	{
		service: "circleci",
		name:    "CircleCI",
		detect:  func(env LookupFunc) bool { return env("CIRCLECI") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("CIRCLE_SHA1")
			m.Branch = env("CIRCLE_BRANCH")
			m.Tag = env("CIRCLE_TAG")
			m.Build = env("CIRCLE_BUILD_NUM")
			m.BuildURL = env("CIRCLE_BUILD_URL")
			m.Job = env("CIRCLE_JOB")
			m.Root = env("CIRCLE_WORKING_DIRECTORY")
			if user, repo := env("CIRCLE_PROJECT_USERNAME"), env("CIRCLE_PROJECT_REPONAME"); user != "" && repo != "" {
				m.Slug = user + "/" + repo
			}
			m.PR = prNumberFromURL(env("CIRCLE_PULL_REQUEST"))
			m.IsPR = m.PR != ""
		},
	},
	{
		service: "jenkins",
		name:    "Jenkins",
		detect:  func(env LookupFunc) bool { return env("JENKINS_URL") != "" && env("BUILD_ID") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = firstNonEmpty(env("ghprbActualCommit"), env("GIT_COMMIT"))
			m.Build = env("BUILD_NUMBER")
			m.BuildURL = env("BUILD_URL")
			m.Job = env("JOB_NAME")
			m.Root = env("WORKSPACE")
			m.PR = firstNonEmpty(env("ghprbPullId"), env("gitlabMergeRequestId"), env("CHANGE_ID"))
			m.IsPR = m.PR != ""
			if m.IsPR {
				m.Branch = firstNonEmpty(env("ghprbTargetBranch"), env("CHANGE_TARGET"))
				m.PRBranch = firstNonEmpty(env("ghprbSourceBranch"), env("CHANGE_BRANCH"))
			} else {
				m.Branch = strings.TrimPrefix(env("GIT_BRANCH"), "origin/")
			}
		},
	},
	{
		service: "travis",
		name:    "Travis CI",
		detect:  func(env LookupFunc) bool { return env("TRAVIS") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("TRAVIS_COMMIT")
			m.Tag = env("TRAVIS_TAG")
			m.Build = env("TRAVIS_BUILD_NUMBER")
			m.BuildURL = env("TRAVIS_BUILD_WEB_URL")
			m.Job = env("TRAVIS_JOB_NUMBER")
			m.JobURL = env("TRAVIS_JOB_WEB_URL")
			m.Slug = env("TRAVIS_REPO_SLUG")
			m.Root = env("TRAVIS_BUILD_DIR")
			m.Branch = env("TRAVIS_BRANCH")
			if pr := env("TRAVIS_PULL_REQUEST"); pr != "" && pr != "false" {
				m.PR = pr
				m.IsPR = true
				m.PRBranch = env("TRAVIS_PULL_REQUEST_BRANCH")
			}
		},
	},
	{
		service: "buildkite",
		name:    "Buildkite",
		detect:  func(env LookupFunc) bool { return env("BUILDKITE") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("BUILDKITE_COMMIT")
			m.Tag = env("BUILDKITE_TAG")
			m.Build = env("BUILDKITE_BUILD_NUMBER")
			m.BuildURL = env("BUILDKITE_BUILD_URL")
			m.Job = env("BUILDKITE_JOB_ID")
			m.Root = env("BUILDKITE_BUILD_CHECKOUT_PATH")
			if pr := env("BUILDKITE_PULL_REQUEST"); pr != "" && pr != "false" {
				m.PR = pr
				m.IsPR = true
				m.Branch = env("BUILDKITE_PULL_REQUEST_BASE_BRANCH")
				m.PRBranch = env("BUILDKITE_BRANCH")
			} else {
				m.Branch = env("BUILDKITE_BRANCH")
			}
		},
	},
	{
		service: "azure-pipelines",
		name:    "Azure Pipelines",
		detect:  func(env LookupFunc) bool { return env("BUILD_BUILDURI") != "" || env("TF_BUILD") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("BUILD_SOURCEVERSION")
			m.Build = env("BUILD_BUILDNUMBER")
			m.Job = env("SYSTEM_JOBID")
			m.Root = env("BUILD_REPOSITORY_LOCALPATH")
			m.PR = env("SYSTEM_PULLREQUEST_PULLREQUESTID")
			m.IsPR = m.PR != ""
			if m.IsPR {
				m.Branch = strings.TrimPrefix(env("SYSTEM_PULLREQUEST_TARGETBRANCH"), "refs/heads/")
				m.PRBranch = strings.TrimPrefix(env("SYSTEM_PULLREQUEST_SOURCEBRANCH"), "refs/heads/")
			} else {
				m.Branch = strings.TrimPrefix(env("BUILD_SOURCEBRANCH"), "refs/heads/")
			}
		},
	},
	{
		service: "bitbucket",
		name:    "Bitbucket Pipelines",
		detect:  func(env LookupFunc) bool { return env("BITBUCKET_BUILD_NUMBER") != "" },
		read: func(env LookupFunc, m *Metadata) {
			m.Commit = env("BITBUCKET_COMMIT")
			m.Tag = env("BITBUCKET_TAG")
			m.Build = env("BITBUCKET_BUILD_NUMBER")
			m.Slug = env("BITBUCKET_REPO_FULL_NAME")
			m.Root = env("BITBUCKET_CLONE_DIR")
			m.Branch = env("BITBUCKET_BRANCH")
			m.PR = env("BITBUCKET_PR_ID")
			m.IsPR = m.PR != ""
			if m.Slug != "" && m.Build != "" {
				m.BuildURL = "https://bitbucket.org/" + m.Slug + "/addon/pipelines/home#!/results/" + m.Build
			}
		},
	},
}

// Detect reads CI metadata from the given environment lookup
func Detect(env LookupFunc) Metadata {
	if env == nil {
		env = os.Getenv
	}

	for _, p := range providers {
		if !p.detect(env) {
			continue
		}
		m := Metadata{IsCI: true, Name: p.name, Service: p.service}
		p.read(env, &m)
		return m
	}

	if isTruthy(env("CI")) {
		return Metadata{IsCI: true, Name: "Generic CI"}
	}

	return Metadata{}
}

// DetectFromEnvironment reads CI metadata from the process environment
func DetectFromEnvironment() Metadata {
	return Detect(os.Getenv)
}

// WithBranch returns a copy with the branch replaced when branch is not empty
func (m Metadata) WithBranch(branch string) Metadata {
	if branch != "" {
		m.Branch = branch
	}
	return m
}

func isTruthy(value string) bool {
	if value == "" {
		return false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return value != "0"
	}
	return b
}

// prNumberFromRef extracts 42 from refs/pull/42/merge
func prNumberFromRef(ref string) string {
	parts := strings.Split(ref, "/")
	if len(parts) >= 3 && parts[0] == "refs" && parts[1] == "pull" {
		return parts[2]
	}
	return ""
}

// prNumberFromURL extracts 42 from https://github.com/org/repo/pull/42
func prNumberFromURL(url string) string {
	if url == "" {
		return ""
	}
	idx := strings.LastIndex(url, "/")
	if idx == -1 || idx == len(url)-1 {
		return ""
	}
	return url[idx+1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

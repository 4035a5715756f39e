// Package crawl defines the core types and collaborator interfaces shared by
// the crawl orchestration subsystems.
package crawl

// Package crawler defines the core types shared by the fetch tiers, the
// escalation pipeline and the crawl queue coordinator: pages, fetch targets,
// the Fetcher contract and the error taxonomy.
package crawler

// Package crawler implements the bounded single-site crawl: the frontier that
// decides which URLs may be visited, the extractor that turns a rendered page
// into typed content items, and the scheduler that drives both one page at a
// time with a politeness delay between pages.
package crawler

// Package retry provides the retry policy used above the connection pool.
// The pool hands out connections and never repeats a request itself, the
// client wraps each request in Do with an IRetryPolicy.
package retry

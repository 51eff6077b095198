// Package alerts runs the scheduled push job. At each configured time of
// day it loads every registered alert, fetches current conditions, and
// sends one localized message per alert over a bounded worker pool.
package alerts

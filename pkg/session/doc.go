/*
Package session owns the live learner sessions.

It serializes transitions per session (optionally across replicas through a
distributed lock), drives the AI round trip outside the lock while the session
sits in the loading state, and discards replies that arrive after the session
ended or was superseded. Every applied transition is published as a diff.
*/
package session

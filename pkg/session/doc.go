/*
Package session guards task processing against duplicate deliveries.

A task message may be delivered more than once by the transport. The Manager makes
sure that a given message id is processed by at most one goroutine of this replica
and, when a distributed locker is configured, by at most one replica at a time.
*/
package session

// Package lockerlink holds the pickup-lifecycle vocabulary shared by the inbound
// callback handler, the outbound webhook registrar and the notification worker:
// statuses, order field keys, note wording, input sanitisation and the
// integration credentials.
package lockerlink

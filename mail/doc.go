// Package mail delivers the account emails over SMTP.
//
// Each template lives under templates/<name>/ as subject.tmpl, html.tmpl
// and text.tmpl, all rendered with the same Data. Messages are sent as
// multipart/alternative with the text part first.
package mail

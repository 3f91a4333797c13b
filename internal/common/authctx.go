package common

import "context"

type ctxKey string

const adminSubjectKey ctxKey = "admin/subject"

// WithAdminSubject stores the authenticated admin subject on the provided context.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey, subject)
}

// AdminSubject extracts the authenticated admin subject from the context if present.
func AdminSubject(ctx context.Context) (string, bool) {
	v := ctx.Value(adminSubjectKey)
	if v == nil {
		return "", false
	}
	subject, ok := v.(string)
	return subject, ok
}

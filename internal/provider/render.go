package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kursadbilgin/notification-relay/internal/domain"
)

const (
	defaultSubject   = "Notification"
	defaultPushTitle = "Notification"
	defaultPushBody  = "You have a new message."
)

// substituteVariables replaces {{name}} placeholders with job variables.
func substituteVariables(template string, variables map[string]any) string {
	if template == "" || len(variables) == 0 || !strings.Contains(template, "{{") {
		return template
	}

	keys := make([]string, 0, len(variables))
	for key := range variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", fmt.Sprint(variables[key]))
	}

	return strings.NewReplacer(pairs...).Replace(template)
}

func emailSubject(job domain.NotificationJob) string {
	subject := job.MetadataString("subject")
	if subject == "" {
		subject = defaultSubject
	}
	return substituteVariables(subject, job.Variables)
}

func emailBody(job domain.NotificationJob) string {
	body := strings.TrimSpace(job.RenderedBody)
	if body == "" {
		body = job.Variable("body")
	}
	return substituteVariables(body, job.Variables)
}

func pushTitle(job domain.NotificationJob) string {
	title := job.MetadataString("title")
	if title == "" {
		title = defaultPushTitle
	}
	return substituteVariables(title, job.Variables)
}

func pushBody(job domain.NotificationJob) string {
	body := job.MetadataString("body")
	if body == "" {
		body = strings.TrimSpace(job.RenderedBody)
	}
	if body == "" {
		body = defaultPushBody
	}
	return substituteVariables(body, job.Variables)
}

func pushData(job domain.NotificationJob) map[string]any {
	if job.Variables == nil {
		return map[string]any{}
	}
	data, ok := job.Variables["data"].(map[string]any)
	if !ok || data == nil {
		return map[string]any{}
	}
	return data
}

// Package delivery turns fetched chapters into documents, mails them to the
// configured receivers and records them as delivered.
package delivery

import (
	"strconv"
	"strings"
)

const (
	// AppName is the mail subject and the sender's display name.
	AppName = "Comik"
	// NotifyTitle is the title of every update push.
	NotifyTitle = "Comic Update"
)

// Notification template placeholders.
const (
	HolderComic   = "%comic%"
	HolderChapter = "%chapter%"
	HolderSuccess = "%success%"
	HolderTotal   = "%total%"
)

// DefaultTemplate is used when the config file sets no notify template.
const DefaultTemplate = "Comic " + HolderComic + " has been updated to chapter " + HolderChapter +
	" (" + HolderSuccess + "/" + HolderTotal + ")."

// RenderNotification fills the placeholders of template. An empty template
// selects DefaultTemplate.
func RenderNotification(template, comic, chapter string, success, total int) string {
	if template == "" {
		template = DefaultTemplate
	}
	return strings.NewReplacer(
		HolderComic, comic,
		HolderChapter, chapter,
		HolderSuccess, strconv.Itoa(success),
		HolderTotal, strconv.Itoa(total),
	).Replace(template)
}

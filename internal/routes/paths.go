// Package routes builds the public paths embedded in sent mails and landing
// pages. They must stay stable for links already delivered.
package routes

const (
	TrackerPrefix         = "/tracker/"
	LandingPageViewPrefix = "/lp/view/"
	LandingPagePostPrefix = "/landing-page/post/"
	AttachmentPrefix      = "/attachment/"

	TrackerImageSuffix = ".png"
)

func TrackerImagePath(trackerID string) string {
	return TrackerPrefix + trackerID + TrackerImageSuffix
}

func TrackerInfosPath(trackerID string) string {
	return TrackerPrefix + trackerID
}

func LandingPageViewPath(trackerID string) string {
	return LandingPageViewPrefix + trackerID
}

func LandingPagePostPath(trackerID string) string {
	return LandingPagePostPrefix + trackerID
}

func AttachmentPath(attachmentID, trackerID string) string {
	return AttachmentPrefix + attachmentID + "/" + trackerID
}

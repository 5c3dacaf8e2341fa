package autoreply

import (
	"fmt"
	"strings"

	"revbridge/internal/domain/bridge"
)

// FormatReviewMessage renders the room message body for a freshly bridged
// review. Plain text, suitable for any homeserver body field.
func FormatReviewMessage(review bridge.Review, appName string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", bridge.Stars(review.Rating))
	if body := strings.TrimSpace(review.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}

	meta := make([]string, 0, 3)
	if appName != "" {
		meta = append(meta, appName)
	}
	if review.AppVersion != "" {
		meta = append(meta, "v"+review.AppVersion)
	}
	if review.Locale != "" {
		meta = append(meta, review.Locale)
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, "(%s)", strings.Join(meta, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatReplyNotice renders the confirmation notice posted back into the
// room after a reply was submitted upstream.
func FormatReplyNotice(reviewID, body string) string {
	return fmt.Sprintf("Reply to review %s submitted: %s", reviewID, strings.TrimSpace(body))
}

var replyTemplates = map[Category]string{
	CategoryCrash:    "Sorry about the crash. We are looking into it and a fix is on the way. If you can, please share your device model and OS version so we can reproduce it.",
	CategoryBug:      "Thanks for flagging this. We have filed the issue and will address it in an upcoming update.",
	CategoryFeature:  "Thanks for the suggestion! We have added it to our roadmap for consideration.",
	CategoryQuestion: "Good question. Please reach out to our support channel and we will walk you through it.",
	CategoryPraise:   "Thank you for the kind words! Reviews like yours keep us going.",
	CategoryOther:    "Thanks for taking the time to leave a review.",
}

// SuggestReply categorizes the review and returns a starter reply template
// for the operator to edit before submitting.
func SuggestReply(review bridge.Review) (Category, string) {
	category := Categorize(review.Body, review.Rating)
	return category, replyTemplates[category]
}

package application

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

func verificationNotification(email string, code int) model.Notification {
	return model.Notification{
		To:      email,
		Subject: "Verify your email address",
		Body: fmt.Sprintf("Your verification code is **%06d**.\n\n"+
			"Enter this code to finish setting up your records account.", code),
	}
}

func statusNotification(email string, t model.CertificateTransaction) model.Notification {
	label := statusLabel(t.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "Your request for a **%s** (request #%d) is now **%s**.", t.CertificateType, t.ID, label)
	switch t.Status {
	case model.StatusReadyForPickup:
		b.WriteString("\n\nPlease bring a valid ID when you claim it at the records office.")
	case model.StatusRejected:
		b.WriteString("\n\nVisit the records office for details or to file a new request.")
	}

	return model.Notification{
		To:      email,
		Subject: fmt.Sprintf("Certificate request #%d: %s", t.ID, label),
		Body:    b.String(),
	}
}

func statusLabel(s model.TransactionStatus) string {
	if s == model.StatusReadyForPickup {
		return "Ready for pickup"
	}
	return string(s)
}

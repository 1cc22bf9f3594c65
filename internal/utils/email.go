package utils

import (
	"fmt"
	"log"
	"strings"

	"checkout_back_end/internal/config"
	"checkout_back_end/internal/models"

	"github.com/wneessen/go-mail"
)

// Mailer envoie l'email de confirmation après règlement.
// Meilleur effort : un échec SMTP ne touche jamais le checkout.
type Mailer struct {
	settings config.Settings
}

func NewMailer(settings config.Settings) *Mailer {
	return &Mailer{settings: settings}
}

// SendOrderConfirmation notifie l'acheteur que sa commande est réglée
func (m *Mailer) SendOrderConfirmation(session *models.CheckoutSession, orderRef string) error {
	if session.BillingAddress == nil || session.BillingAddress.Email == "" {
		// Pas d'adresse email fournie, rien à envoyer
		return nil
	}
	to := session.BillingAddress.Email

	msg := mail.NewMsg()
	if err := msg.From(m.settings.MailFrom); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(fmt.Sprintf("✅ Commande %s confirmée", orderRef))
	msg.SetBodyString(mail.TypeTextHTML, orderConfirmationHTML(session, orderRef))

	client, err := mail.NewClient(m.settings.SMTPHost,
		mail.WithPort(587),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.settings.SMTPUsername),
		mail.WithPassword(m.settings.SMTPPassword),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Envoi de l'e-mail de confirmation à", to)
	return client.DialAndSend(msg)
}

func orderConfirmationHTML(session *models.CheckoutSession, orderRef string) string {
	var items strings.Builder
	for _, item := range session.Items {
		items.WriteString(fmt.Sprintf(
			`<tr><td style="padding:8px;">%s</td><td style="padding:8px;text-align:center;">×%d</td><td style="padding:8px;text-align:right;">%.2f %s</td></tr>`,
			item.Name, item.Quantity, item.LineSubtotal, strings.ToUpper(session.Currency)))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Confirmation de commande</title></head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f5f5f5;">
  <table role="presentation" style="max-width:600px;margin:40px auto;background-color:#ffffff;border-radius:12px;padding:24px;width:100%%;">
    <tr><td>
      <h2 style="margin-top:0;">Merci pour votre commande !</h2>
      <p>Votre commande <strong>%s</strong> est confirmée et va être préparée.</p>
      <table style="width:100%%;border-collapse:collapse;margin:16px 0;">%s</table>
      <p style="font-size:18px;text-align:right;"><strong>Total : %.2f %s</strong></p>
    </td></tr>
  </table>
</body>
</html>`, orderRef, items.String(), session.Total, strings.ToUpper(session.Currency))
}

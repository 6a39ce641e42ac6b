// Package alerts evaluates threshold rules against a finished analysis report
// and delivers the alerts that fire to Slack, Teams or generic HTTP webhooks.
package alerts

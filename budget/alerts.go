/*
alerts.go - Alert generation from analysis rows

PURPOSE:
  Derives alert records from per-budget analysis. Alerts are computed on
  demand and never persisted.

ALERT RULES:
  budget_exceeded   (high)   utilization >= 100%, message carries overage %
  budget_warning    (medium) utilization in [90, 100)
  spending_increase (medium) trend percentage above 50%

  The first two are mutually exclusive; spending_increase is independent,
  so one budget can emit two alerts.
*/
package budget

import "fmt"

// GenerateAlerts derives alerts for every analysis row that crosses a
// threshold.
func GenerateAlerts(rows []Analysis) []Alert {
	var alerts []Alert

	for _, row := range rows {
		switch {
		case row.Utilization.GreaterThanOrEqual(thresholdExceeded):
			overage := row.Utilization.Sub(hundred)
			alerts = append(alerts, Alert{
				Type:       AlertBudgetExceeded,
				Severity:   SeverityHigh,
				CategoryID: row.Budget.CategoryID,
				Message:    fmt.Sprintf("Budget exceeded by %s%%", overage.StringFixed(1)),
				Amount:     row.RemainingAmount,
			})

		case row.Utilization.GreaterThanOrEqual(thresholdCritical):
			alerts = append(alerts, Alert{
				Type:       AlertBudgetWarning,
				Severity:   SeverityMedium,
				CategoryID: row.Budget.CategoryID,
				Message:    fmt.Sprintf("Budget utilization at %s%%", row.Utilization.StringFixed(1)),
				Amount:     row.RemainingAmount,
			})
		}

		if row.Trend.Percentage.GreaterThan(trendAlertCutoff) {
			alerts = append(alerts, Alert{
				Type:       AlertSpendingIncrease,
				Severity:   SeverityMedium,
				CategoryID: row.Budget.CategoryID,
				Message:    fmt.Sprintf("Spending increased by %s%% compared to previous period", row.Trend.Percentage.StringFixed(1)),
				Amount:     row.Spending.TotalSpent.Sub(row.Trend.PreviousPeriodSpent),
			})
		}
	}

	return alerts
}

package commands

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/internal/dag"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
	"github.com/spf13/cobra"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a project health check",
		Long: `Analyze the rule store and target database for problems.

The doctor command reports:
- Project summary (rules, forest shape, decision tables, links)
- Health checks grouped by category (Storage, Graph, Rules)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leaprules doctor

  # Output as JSON
  leaprules doctor --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	Rules          int   `json:"rules"`
	Roots          int   `json:"roots"`
	Depth          int   `json:"depth"`
	DecisionTables int   `json:"decision_tables"`
	Conflicts      int   `json:"conflicts"`
	CriticalLinks  int   `json:"critical_links"`
	SchemaVersion  int64 `json:"schema_version"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	CheckID    string   `json:"check_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

// doctorInput is everything the checks look at, gathered up front so the
// checks themselves are pure.
type doctorInput struct {
	Rules         []*core.Rule
	Conflicts     []core.Conflict
	Links         []core.GlobalCriticalLink
	Decisions     []string
	SchemaVersion int64
	SchemaErr     error
	TargetErr     error
}

func runDoctor(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	in := doctorInput{Decisions: eng.Decisions().IDs()}
	if in.Rules, err = eng.ListRules(); err != nil {
		return err
	}
	if in.Conflicts, in.Links, err = eng.GraphLinks(); err != nil {
		return err
	}
	in.SchemaVersion, in.SchemaErr = eng.SchemaVersion()
	in.TargetErr = eng.Ping(cmd.Context())

	out := diagnose(in)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

func diagnose(in doctorInput) *DoctorOutput {
	byID := make(map[int64]*core.Rule, len(in.Rules))
	for _, rule := range in.Rules {
		byID[rule.ID] = rule
	}
	g := dag.NewGraph()
	for _, rule := range in.Rules {
		g.AddNode(rule.ID, rule)
	}
	for _, rule := range in.Rules {
		if p, ok := rule.Parent(); ok && byID[p] != nil && p != rule.ID {
			_ = g.AddEdge(p, rule.ID, dag.EdgeParent)
		}
	}

	checks := []HealthCheck{
		checkOf("ST01", "State schema is migrated", "storage", "error", schemaIssues(in)),
		checkOf("ST02", "Target database reachable", "storage", "error", errIssues(in.TargetErr)),
		checkOf("GR01", "Parent links form a forest", "graph", "error", cycleIssues(g)),
		checkOf("GR02", "Parents exist", "graph", "warn", orphanIssues(in.Rules, byID)),
		checkOf("GR03", "Critical links are valid", "graph", "warn", linkIssues(in.Links, byID)),
		checkOf("GR04", "Conflicts reference existing rules", "graph", "warn", conflictIssues(in.Conflicts, byID)),
		checkOf("RU01", "Rule SQL parses", "rules", "error", parseIssues(in.Rules)),
		checkOf("RU02", "Decision tables are loaded", "rules", "error", decisionIssues(in.Rules, in.Decisions)),
		checkOf("RU03", "Critical rules have a scope", "rules", "warn", scopeIssues(in.Rules)),
	}

	sort.SliceStable(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return groupOrder(checks[i].Group) < groupOrder(checks[j].Group)
		}
		return checks[i].CheckID < checks[j].CheckID
	})

	issues := 0
	for _, c := range checks {
		issues += c.IssueCount
	}

	return &DoctorOutput{
		Summary: ProjectSummary{
			Rules:          len(in.Rules),
			Roots:          len(g.Roots(dag.EdgeParent)),
			Depth:          forestDepth(g),
			DecisionTables: len(in.Decisions),
			Conflicts:      len(in.Conflicts),
			CriticalLinks:  len(in.Links),
			SchemaVersion:  in.SchemaVersion,
		},
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks, len(in.Rules)),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issues,
	}
}

func groupOrder(g string) int {
	switch g {
	case "storage":
		return 0
	case "graph":
		return 1
	default:
		return 2
	}
}

func checkOf(id, name, group, severity string, details []string) HealthCheck {
	status := "pass"
	if len(details) > 0 {
		status = severity
	}
	return HealthCheck{CheckID: id, Name: name, Group: group, Status: status, IssueCount: len(details), Details: details}
}

func errIssues(err error) []string {
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}

func schemaIssues(in doctorInput) []string {
	if in.SchemaErr != nil {
		return errIssues(in.SchemaErr)
	}
	if in.SchemaVersion <= 0 {
		return []string{"no migrations applied"}
	}
	return nil
}

func cycleIssues(g *dag.Graph) []string {
	if ok, cycle := g.HasCycle(dag.EdgeParent); ok {
		return []string{"parent cycle: " + formatIDs(cycle)}
	}
	return nil
}

func orphanIssues(rules []*core.Rule, byID map[int64]*core.Rule) []string {
	var out []string
	for _, rule := range rules {
		if p, ok := rule.Parent(); ok && byID[p] == nil {
			out = append(out, fmt.Sprintf("rule %d (%s) references missing parent %d and runs as a root", rule.ID, rule.Name, p))
		}
	}
	return out
}

func linkIssues(links []core.GlobalCriticalLink, byID map[int64]*core.Rule) []string {
	var out []string
	for _, l := range links {
		src := byID[l.SourceID]
		switch {
		case src == nil:
			out = append(out, fmt.Sprintf("link %d -> %d: source rule is missing", l.SourceID, l.TargetID))
		case !src.Global || !src.Critical:
			out = append(out, fmt.Sprintf("link %d -> %d: source is no longer a global critical rule", l.SourceID, l.TargetID))
		case byID[l.TargetID] == nil:
			out = append(out, fmt.Sprintf("link %d -> %d: target rule is missing", l.SourceID, l.TargetID))
		}
	}
	return out
}

func conflictIssues(conflicts []core.Conflict, byID map[int64]*core.Rule) []string {
	var out []string
	for _, c := range conflicts {
		if byID[c.RuleA] == nil || byID[c.RuleB] == nil {
			out = append(out, fmt.Sprintf("conflict %d/%d references a missing rule", c.RuleA, c.RuleB))
		}
	}
	return out
}

func parseIssues(rules []*core.Rule) []string {
	items := make(map[int64]string)
	for _, rule := range rules {
		if rule.DecisionTableID == "" {
			items[rule.ID] = rule.SQL
		}
	}
	batch := sqlref.ExtractBatch(items)

	ids := slices.Sorted(maps.Keys(batch.Errors))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("rule %d: %v", id, batch.Errors[id]))
	}
	return out
}

func decisionIssues(rules []*core.Rule, loaded []string) []string {
	var out []string
	for _, rule := range rules {
		if rule.DecisionTableID != "" && !slices.Contains(loaded, rule.DecisionTableID) {
			out = append(out, fmt.Sprintf("rule %d (%s) uses decision table %q which is not loaded", rule.ID, rule.Name, rule.DecisionTableID))
		}
	}
	return out
}

func scopeIssues(rules []*core.Rule) []string {
	var out []string
	for _, rule := range rules {
		if rule.Critical && (rule.CriticalScope == core.CriticalScopeNone || rule.CriticalScope == "") {
			out = append(out, fmt.Sprintf("rule %d (%s) is critical with scope NONE", rule.ID, rule.Name))
		}
	}
	return out
}

// forestDepth returns the number of levels in the parent forest.
func forestDepth(g *dag.Graph) int {
	depth := 0
	for _, root := range g.Roots(dag.EdgeParent) {
		depth = max(depth, 1)
		g.Walk(root, dag.EdgeParent, func(_ int64, d int) bool {
			depth = max(depth, d+1)
			return true
		})
	}
	return depth
}

// calculateHealthScore computes a health score from 0-100.
// The scoring weights:
// - Each issue reduces points
// - Errors count double
// - More rules means issues have less individual impact
func calculateHealthScore(checks []HealthCheck, ruleCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if ruleCount > 10 {
		basePenalty = 3.0
	}
	if ruleCount > 50 {
		basePenalty = 2.0
	}
	if ruleCount > 100 {
		basePenalty = 1.0
	}

	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= float64(check.IssueCount) * basePenalty * 2
		case "warn":
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	return int(min(max(score, 0), 100))
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		if rec := getRecommendation(check.CheckID); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}

	// Limit to top 5 recommendations
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

// getRecommendation returns a recommendation for a specific check.
func getRecommendation(checkID string) string {
	switch checkID {
	case "ST01":
		return "Delete or restore the state database; migrations could not be read"
	case "ST02":
		return "Check the target section of leaprules.yaml and database credentials"
	case "GR01":
		return "Break parent cycles with 'leaprules rules edit <id> --parent 0'"
	case "GR02":
		return "Re-parent rules whose parent was deleted, or clear their parent"
	case "GR03":
		return "Remove critical links whose source is no longer global and critical"
	case "GR04":
		return "Remove conflicts that reference deleted rules"
	case "RU01":
		return "Fix rule SQL, then run 'leaprules deps refresh'"
	case "RU02":
		return "Add the missing decision tables to the decisions directory"
	case "RU03":
		return "Give critical rules a scope with 'leaprules rules edit <id> --scope group'"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("leaprules Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Project Summary"))
	r.Printf("   Rules: %d | Roots: %d | Depth: %d levels\n", out.Summary.Rules, out.Summary.Roots, out.Summary.Depth)
	r.Printf("   Decision tables: %d | Conflicts: %d | Critical links: %d | Schema: v%d\n",
		out.Summary.DecisionTables, out.Summary.Conflicts, out.Summary.CriticalLinks, out.Summary.SchemaVersion)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.String()
		switch check.Status {
		case "warn":
			icon = styles.Warning.Render("!")
		case "error":
			icon = styles.StatusFailed.String()
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.CheckID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		// Show first 3 details for issues
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# leaprules Health Report")
	r.Println("")

	r.Println("## Project Summary")
	r.Println("")
	r.Printf("- **Rules**: %d\n", out.Summary.Rules)
	r.Printf("- **Roots**: %d\n", out.Summary.Roots)
	r.Printf("- **Depth**: %d levels\n", out.Summary.Depth)
	r.Printf("- **Decision tables**: %d\n", out.Summary.DecisionTables)
	r.Printf("- **Conflicts**: %d\n", out.Summary.Conflicts)
	r.Printf("- **Critical links**: %d\n", out.Summary.CriticalLinks)
	r.Printf("- **Schema version**: %d\n", out.Summary.SchemaVersion)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Printf("### %s\n\n", titleCaser.String(currentGroup))
		}

		icon := "✓"
		switch check.Status {
		case "warn":
			icon = "⚠"
		case "error":
			icon = "✗"
		}

		status := fmt.Sprintf("- %s **%s**: %s", icon, check.CheckID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println(status)
		for _, detail := range check.Details {
			r.Println("  - " + detail)
		}
	}
	r.Println("")

	r.Printf("## Health Score: %d/100\n\n", out.Score)

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
	}

	return nil
}

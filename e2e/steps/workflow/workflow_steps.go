package workflow

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(method, path, persona string, body any) error
	AddPersonaID(name string, roles []string, branchID string) (string, error)
	SeedRecord(applicantUserID, fullName string) (string, error)
	Remember(key, value string)
	Recall(key string) (string, error)
	Status() int
	Body() string
	Field(path string) (any, error)
	StringField(path string) (string, error)
}

// RegisterSteps registers workflow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &workflowSteps{tc: tc}

	// Organization and personas
	ctx.Step(`^a super admin "([^"]*)"$`, steps.superAdmin)
	ctx.Step(`^roles "([^"]*)" staffed at a new branch$`, steps.rolesAtNewBranch)
	ctx.Step(`^"([^"]*)" is a reviewer holding "([^"]*)"$`, steps.reviewer)
	ctx.Step(`^"([^"]*)" is an applicant with a KYC record$`, steps.applicant)

	// Workflow commands
	ctx.Step(`^"([^"]*)" starts a workflow for "([^"]*)"$`, steps.start)
	ctx.Step(`^"([^"]*)" approves the workflow$`, steps.approve)
	ctx.Step(`^"([^"]*)" approves the workflow at version (\d+)$`, steps.approveAtVersion)
	ctx.Step(`^"([^"]*)" returns the workflow to the previous level with remarks "([^"]*)"$`, steps.returnToPrevious)
	ctx.Step(`^"([^"]*)" sends the workflow back to the applicant with remarks "([^"]*)"$`, steps.sendBack)
	ctx.Step(`^"([^"]*)" resubmits the workflow$`, steps.resubmit)
	ctx.Step(`^"([^"]*)" pulls the workflow back$`, steps.pullBack)

	// Workflow assertions
	ctx.Step(`^the workflow should be pending "([^"]*)"$`, steps.shouldBePending)
	ctx.Step(`^the workflow status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the workflow log should have (\d+) entries$`, steps.logShouldHave)
	ctx.Step(`^"([^"]*)" should see the workflow in their pending queue$`, steps.inPendingQueue)
}

type workflowSteps struct {
	tc TestContext
}

// roleName namespaces test roles so repeated runs against one server reuse
// them instead of colliding with real configuration.
func roleName(logical string) string {
	return "E2E " + strings.TrimSpace(logical)
}

func (s *workflowSteps) superAdmin(_ context.Context, name string) error {
	_, err := s.tc.AddPersonaID(name, []string{"SuperAdmin"}, "")
	if err == nil {
		s.tc.Remember("super", name)
	}
	return err
}

// rolesAtNewBranch takes "Officer:10,Compliance:20".
func (s *workflowSteps) rolesAtNewBranch(_ context.Context, spec string) error {
	super, err := s.tc.Recall("super")
	if err != nil {
		return err
	}
	code := "E2E" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if err := s.tc.Request(http.MethodPost, "/admin/branches", super, map[string]any{"name": "Branch " + code, "code": code}); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("create branch: %d %s", s.tc.Status(), s.tc.Body())
	}
	branchID, err := s.tc.StringField("id")
	if err != nil {
		return err
	}
	s.tc.Remember("branch", branchID)

	for _, part := range strings.Split(spec, ",") {
		name, orderText, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("role spec %q must look like Name:order", part)
		}
		order, err := strconv.Atoi(strings.TrimSpace(orderText))
		if err != nil {
			return err
		}
		if err := s.tc.Request(http.MethodPost, "/admin/roles", super, map[string]any{"name": roleName(name), "order": order}); err != nil {
			return err
		}
		if s.tc.Status() != http.StatusCreated && s.tc.Status() != http.StatusConflict {
			return fmt.Errorf("create role %s: %d %s", name, s.tc.Status(), s.tc.Body())
		}
		if err := s.tc.Request(http.MethodPut, "/admin/branches/"+branchID+"/roles/"+roleName(name), super, nil); err != nil {
			return err
		}
		if s.tc.Status() != http.StatusNoContent {
			return fmt.Errorf("staff role %s: %d %s", name, s.tc.Status(), s.tc.Body())
		}
	}
	return nil
}

func (s *workflowSteps) reviewer(_ context.Context, name, role string) error {
	branchID, err := s.tc.Recall("branch")
	if err != nil {
		return err
	}
	_, err = s.tc.AddPersonaID(name, []string{roleName(role)}, branchID)
	return err
}

func (s *workflowSteps) applicant(_ context.Context, name string) error {
	userID, err := s.tc.AddPersonaID(name, nil, "")
	if err != nil {
		return err
	}
	recordID, err := s.tc.SeedRecord(userID, "E2E Applicant "+name)
	if err != nil {
		return err
	}
	s.tc.Remember("record:"+name, recordID)
	s.tc.Remember("user:"+name, userID)
	return nil
}

func (s *workflowSteps) start(_ context.Context, persona, applicant string) error {
	recordID, err := s.tc.Recall("record:" + applicant)
	if err != nil {
		return err
	}
	userID, err := s.tc.Recall("user:" + applicant)
	if err != nil {
		return err
	}
	branchID, err := s.tc.Recall("branch")
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodPost, "/workflows", persona, map[string]any{
		"kyc_record_id":     recordID,
		"branch_id":         branchID,
		"applicant_user_id": userID,
	}); err != nil {
		return err
	}
	if s.tc.Status() == http.StatusCreated {
		workflowID, err := s.tc.StringField("id")
		if err != nil {
			return err
		}
		s.tc.Remember("workflow", workflowID)
	}
	return nil
}

func (s *workflowSteps) action(persona, action string, body map[string]any) error {
	workflowID, err := s.tc.Recall("workflow")
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodPost, "/workflows/"+workflowID+"/"+action, persona, body)
}

func (s *workflowSteps) approve(_ context.Context, persona string) error {
	return s.action(persona, "approve", nil)
}

func (s *workflowSteps) approveAtVersion(_ context.Context, persona string, version int) error {
	return s.action(persona, "approve", map[string]any{"expected_version": version})
}

func (s *workflowSteps) returnToPrevious(_ context.Context, persona, remarks string) error {
	return s.action(persona, "reject", map[string]any{"return_to_previous": true, "remarks": remarks})
}

func (s *workflowSteps) sendBack(_ context.Context, persona, remarks string) error {
	return s.action(persona, "reject", map[string]any{"remarks": remarks})
}

func (s *workflowSteps) resubmit(_ context.Context, persona string) error {
	return s.action(persona, "resubmit", nil)
}

func (s *workflowSteps) pullBack(_ context.Context, persona string) error {
	return s.action(persona, "pull-back", nil)
}

// loadDetail fetches the workflow as the super admin, replacing the last
// response.
func (s *workflowSteps) loadDetail() error {
	workflowID, err := s.tc.Recall("workflow")
	if err != nil {
		return err
	}
	super, err := s.tc.Recall("super")
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodGet, "/workflows/"+workflowID, super, nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("load workflow: %d %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *workflowSteps) shouldBePending(_ context.Context, role string) error {
	if err := s.loadDetail(); err != nil {
		return err
	}
	want := roleName(role)
	if role == "SuperAdmin" {
		want = role
	}
	chain, err := s.tc.Field("chain")
	if err != nil {
		return err
	}
	for _, lvl := range chain.([]any) {
		level := lvl.(map[string]any)
		if level["is_current"] == true {
			if level["role_name"] != want {
				return fmt.Errorf("expected pending role %q, got %q", want, level["role_name"])
			}
			return nil
		}
	}
	return fmt.Errorf("no current level in %s", s.tc.Body())
}

func (s *workflowSteps) statusShouldBe(_ context.Context, status string) error {
	if err := s.loadDetail(); err != nil {
		return err
	}
	got, err := s.tc.StringField("workflow.status")
	if err != nil {
		return err
	}
	if got != status {
		return fmt.Errorf("expected status %q, got %q", status, got)
	}
	return nil
}

func (s *workflowSteps) logShouldHave(_ context.Context, n int) error {
	if err := s.loadDetail(); err != nil {
		return err
	}
	entries, err := s.tc.Field("log")
	if err != nil {
		return err
	}
	if got := len(entries.([]any)); got != n {
		return fmt.Errorf("expected %d log entries, got %d", n, got)
	}
	return nil
}

func (s *workflowSteps) inPendingQueue(_ context.Context, persona string) error {
	workflowID, err := s.tc.Recall("workflow")
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodGet, "/workflows/pending", persona, nil); err != nil {
		return err
	}
	items, err := s.tc.Field("items")
	if err != nil {
		return err
	}
	for _, item := range items.([]any) {
		if item.(map[string]any)["id"] == workflowID {
			return nil
		}
	}
	return fmt.Errorf("workflow %s not in %s's queue: %s", workflowID, persona, s.tc.Body())
}

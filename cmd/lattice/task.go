package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Operate on a single task",
}

func init() {
	taskCmd.AddCommand(taskCreateCmd, taskUpdateCmd, taskStatusCmd, taskAssignCmd,
		taskCommentCmd, taskLinkCmd, taskUnlinkCmd, taskAttachCmd,
		taskArchiveCmd, taskUnarchiveCmd, taskEventCmd, taskGetCmd)
	taskCommentCmd.AddCommand(taskCommentAddCmd, taskCommentEditCmd, taskCommentDeleteCmd)
}

func printSnapshot(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

var (
	flagActor       string
	flagEventID     string
	flagTriggeredBy string
	flagOnBehalfOf  string
	flagReason      string
)

func provenanceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagActor, "actor", "", "acting identity (default: $LATTICE_ACTOR or config default_actor)")
	cmd.Flags().StringVar(&flagEventID, "event-id", "", "idempotency key for this call")
	cmd.Flags().StringVar(&flagTriggeredBy, "triggered-by", "", "automation or agent that triggered this call")
	cmd.Flags().StringVar(&flagOnBehalfOf, "on-behalf-of", "", "human this call is performed on behalf of")
	cmd.Flags().StringVar(&flagReason, "reason", "", "free-text justification")
}

func provenance() *model.Provenance {
	if flagTriggeredBy == "" && flagOnBehalfOf == "" && flagReason == "" {
		return nil
	}
	return &model.Provenance{TriggeredBy: flagTriggeredBy, OnBehalfOf: flagOnBehalfOf, Reason: flagReason}
}

var (
	flagTitle        string
	flagDescription  string
	flagStatus       string
	flagType         string
	flagPriority     string
	flagUrgency      string
	flagComplexity   string
	flagAssignee     string
	flagTags         []string
	flagCustomFields string
	flagTaskID       string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new task",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		var custom map[string]interface{}
		if flagCustomFields != "" {
			if err := json.Unmarshal([]byte(flagCustomFields), &custom); err != nil {
				return fmt.Errorf("parsing --custom-fields: %w", err)
			}
		}
		var assignedTo *string
		if flagAssignee != "" {
			assignedTo = &flagAssignee
		}
		snap, err := a.svc.Create(context.Background(), task.CreateRequest{
			TaskID: flagTaskID, EventID: flagEventID, Title: flagTitle, Description: flagDescription,
			Status: flagStatus, Type: flagType, Priority: model.Priority(flagPriority),
			Urgency: model.Urgency(flagUrgency), Complexity: model.Complexity(flagComplexity),
			AssignedTo: assignedTo, Tags: flagTags, CustomFields: custom,
			Actor: a.resolveActor(flagActor), Provenance: provenance(),
		})
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	taskCreateCmd.Flags().StringVar(&flagTaskID, "id", "", "pre-minted task id, for idempotent retries")
	taskCreateCmd.Flags().StringVar(&flagTitle, "title", "", "task title")
	taskCreateCmd.Flags().StringVar(&flagDescription, "description", "", "task description")
	taskCreateCmd.Flags().StringVar(&flagStatus, "status", "", "initial status (default: configured default_status)")
	taskCreateCmd.Flags().StringVar(&flagType, "type", "", "task type")
	taskCreateCmd.Flags().StringVar(&flagPriority, "priority", "", "priority")
	taskCreateCmd.Flags().StringVar(&flagUrgency, "urgency", "", "urgency")
	taskCreateCmd.Flags().StringVar(&flagComplexity, "complexity", "", "complexity")
	taskCreateCmd.Flags().StringVar(&flagAssignee, "assignee", "", "assigned actor")
	taskCreateCmd.Flags().StringSliceVar(&flagTags, "tags", nil, "comma-separated tags")
	taskCreateCmd.Flags().StringVar(&flagCustomFields, "custom-fields", "", "JSON object of custom fields")
	taskCreateCmd.MarkFlagRequired("title")
	provenanceFlags(taskCreateCmd)
}

var (
	flagField string
	flagValue string
)

var taskUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update a single field on a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		var value interface{}
		if err := json.Unmarshal([]byte(flagValue), &value); err != nil {
			value = flagValue // plain string, not JSON
		}
		snap, err := a.svc.Update(context.Background(), args[0], task.UpdateRequest{
			EventID: flagEventID, Field: flagField, Value: value,
			Actor: a.resolveActor(flagActor), Provenance: provenance(),
		})
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	taskUpdateCmd.Flags().StringVar(&flagField, "field", "", "field to update (or custom_fields.<key>)")
	taskUpdateCmd.Flags().StringVar(&flagValue, "value", "", "new value, as a JSON literal or a plain string")
	taskUpdateCmd.MarkFlagRequired("field")
	provenanceFlags(taskUpdateCmd)
}

var (
	flagTo    string
	flagForce bool
)

var taskStatusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Change a task's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, err := a.svc.ChangeStatus(context.Background(), args[0], task.ChangeStatusRequest{
			EventID: flagEventID, To: flagTo, Force: flagForce, Reason: flagReason,
			Actor: a.resolveActor(flagActor), Provenance: provenance(),
		})
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	taskStatusCmd.Flags().StringVar(&flagTo, "to", "", "target status")
	taskStatusCmd.Flags().BoolVar(&flagForce, "force", false, "bypass the configured transition graph (requires --reason)")
	taskStatusCmd.MarkFlagRequired("to")
	provenanceFlags(taskStatusCmd)
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign ID",
	Short: "Assign or unassign a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		var assignee *string
		if flagAssignee != "" {
			assignee = &flagAssignee
		}
		snap, err := a.svc.Assign(context.Background(), args[0], assignee, a.resolveActor(flagActor), flagEventID, nil)
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	taskAssignCmd.Flags().StringVar(&flagAssignee, "assignee", "", "actor to assign to (empty unassigns)")
	taskAssignCmd.Flags().StringVar(&flagActor, "actor", "", "acting identity")
	taskAssignCmd.Flags().StringVar(&flagEventID, "event-id", "", "idempotency key for this call")
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage comments on a task",
}

var (
	flagBody      string
	flagRole      string
	flagCommentID string
)

var taskCommentAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Add a comment to a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, commentID, err := a.svc.CommentAdd(context.Background(), args[0], flagBody, flagRole, a.resolveActor(flagActor), flagEventID, provenance())
		if err != nil {
			return err
		}
		fmt.Println("comment_id:", commentID)
		return printSnapshot(snap)
	},
}

var taskCommentEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit an existing comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, err := a.svc.CommentEdit(context.Background(), args[0], flagCommentID, flagBody, a.resolveActor(flagActor), flagEventID, provenance())
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

var taskCommentDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete (tombstone) a comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, err := a.svc.CommentDelete(context.Background(), args[0], flagCommentID, a.resolveActor(flagActor), flagEventID, provenance())
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	taskCommentAddCmd.Flags().StringVar(&flagBody, "body", "", "comment body")
	taskCommentAddCmd.Flags().StringVar(&flagRole, "role", "", "comment role")
	taskCommentAddCmd.MarkFlagRequired("body")
	provenanceFlags(taskCommentAddCmd)

	taskCommentEditCmd.Flags().StringVar(&flagCommentID, "comment-id", "", "comment to edit")
	taskCommentEditCmd.Flags().StringVar(&flagBody, "body", "", "new comment body")
	taskCommentEditCmd.MarkFlagRequired("comment-id")
	taskCommentEditCmd.MarkFlagRequired("body")
	provenanceFlags(taskCommentEditCmd)

	taskCommentDeleteCmd.Flags().StringVar(&flagCommentID, "comment-id", "", "comment to delete")
	taskCommentDeleteCmd.MarkFlagRequired("comment-id")
	provenanceFlags(taskCommentDeleteCmd)
}

var (
	flagLinkType string
	flagNote     string
)

var taskLinkCmd = &cobra.Command{
	Use:   "link SRC_ID TARGET_ID",
	Short: "Create a relationship edge between two tasks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		src, target, err := a.svc.Link(context.Background(), args[0], args[1], task.LinkRequest{
			EventID: flagEventID, Type: flagLinkType, Note: flagNote,
			Actor: a.resolveActor(flagActor), Provenance: provenance(),
		})
		if err != nil {
			return err
		}
		return printSnapshot(struct {
			Source *model.Task `json:"source"`
			Target *model.Task `json:"target"`
		}{src, target})
	},
}

var taskUnlinkCmd = &cobra.Command{
	Use:   "unlink SRC_ID TARGET_ID",
	Short: "Remove a relationship edge between two tasks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		src, target, err := a.svc.Unlink(context.Background(), args[0], args[1], task.LinkRequest{
			EventID: flagEventID, Type: flagLinkType, Note: flagNote,
			Actor: a.resolveActor(flagActor), Provenance: provenance(),
		})
		if err != nil {
			return err
		}
		return printSnapshot(struct {
			Source *model.Task `json:"source"`
			Target *model.Task `json:"target"`
		}{src, target})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{taskLinkCmd, taskUnlinkCmd} {
		cmd.Flags().StringVar(&flagLinkType, "type", "", "relationship type")
		cmd.Flags().StringVar(&flagNote, "note", "", "free-text note on the edge")
		cmd.MarkFlagRequired("type")
		provenanceFlags(cmd)
	}
}

var (
	flagSource     string
	flagSourcePath string
	flagURL        string
	flagSummary    string
	flagSensitive  bool
)

var taskAttachCmd = &cobra.Command{
	Use:   "attach ID",
	Short: "Attach an artifact as evidence on a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, art, err := a.svc.Attach(context.Background(), args[0], task.AttachRequest{
			EventID: flagEventID, Source: model.ArtifactSource(flagSource), SourcePath: flagSourcePath,
			URL: flagURL, Title: flagTitle, Summary: flagSummary, Sensitive: flagSensitive, Role: flagRole,
			Actor: a.resolveActor(flagActor), Provenance: provenance(),
		})
		if err != nil {
			return err
		}
		return printSnapshot(struct {
			Task     *model.Task     `json:"task"`
			Artifact *model.Artifact `json:"artifact"`
		}{snap, art})
	},
}

func init() {
	taskAttachCmd.Flags().StringVar(&flagSource, "source", "", "artifact source: file, url, or conversation")
	taskAttachCmd.Flags().StringVar(&flagSourcePath, "source-path", "", "path to the source file, when --source=file")
	taskAttachCmd.Flags().StringVar(&flagURL, "url", "", "artifact URL, when --source=url")
	taskAttachCmd.Flags().StringVar(&flagTitle, "title", "", "artifact title")
	taskAttachCmd.Flags().StringVar(&flagSummary, "summary", "", "artifact summary")
	taskAttachCmd.Flags().BoolVar(&flagSensitive, "sensitive", false, "mark the artifact sensitive")
	taskAttachCmd.Flags().StringVar(&flagRole, "role", "", "evidence role this artifact satisfies")
	provenanceFlags(taskAttachCmd)
}

var taskArchiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "Archive a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, err := a.svc.Archive(context.Background(), args[0], a.resolveActor(flagActor), flagEventID, provenance())
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

var taskUnarchiveCmd = &cobra.Command{
	Use:   "unarchive ID",
	Short: "Unarchive a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, err := a.svc.Unarchive(context.Background(), args[0], a.resolveActor(flagActor), flagEventID, provenance())
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	provenanceFlags(taskArchiveCmd)
	provenanceFlags(taskUnarchiveCmd)
}

var (
	flagEventType string
	flagEventData string
)

var taskEventCmd = &cobra.Command{
	Use:   "event ID",
	Short: "Record a custom domain event against a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		var data map[string]interface{}
		if flagEventData != "" {
			if err := json.Unmarshal([]byte(flagEventData), &data); err != nil {
				return fmt.Errorf("parsing --data: %w", err)
			}
		}
		snap, err := a.svc.RecordCustomEvent(context.Background(), args[0], flagEventType, data, a.resolveActor(flagActor), flagEventID, provenance())
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	taskEventCmd.Flags().StringVar(&flagEventType, "type", "", "custom event type")
	taskEventCmd.Flags().StringVar(&flagEventData, "data", "", "JSON object of event data")
	taskEventCmd.MarkFlagRequired("type")
	provenanceFlags(taskEventCmd)
}

var taskGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Fetch a task's current snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		snap, err := a.svc.Get(args[0])
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

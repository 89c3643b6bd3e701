package actions

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/pagebot/internal/admission"
	"basegraph.app/pagebot/internal/brain"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/tenant"
)

func (d *Dispatcher) acknowledge(ctx context.Context, st *tenant.State, task domain.Task) (Result, error) {
	remoteID, err := d.platform.PostAction(ctx, st.Credentials(), domain.TaskTypeAcknowledge, task.TargetID, "")
	if err != nil {
		return Result{}, fmt.Errorf("liking %s: %w", task.TargetID, err)
	}
	return Result{Performed: true, RemoteID: remoteID}, nil
}

func (d *Dispatcher) respond(ctx context.Context, st *tenant.State, task domain.Task) (Result, error) {
	comment, err := d.item(ctx, st, task.TargetID)
	if err != nil {
		return Result{}, err
	}

	in := brain.ReplyInput{
		Tenant:  st.Profile,
		Comment: comment,
	}
	if task.ThreadID != "" && task.ThreadID != task.TargetID {
		in.Container = d.container(ctx, st, task.ThreadID)
	}

	var parentText string
	if task.ParentID != "" && task.ParentID != task.ThreadID {
		if parent, err := d.item(ctx, st, task.ParentID); err == nil {
			in.Parent = &parent
			parentText = parent.Text
		} else {
			slog.WarnContext(ctx, "parent comment unavailable, replying without it", "parent_id", task.ParentID, "error", err)
		}
	}
	in.Signals = admission.Classify(comment.Text, parentText)

	text, err := d.writer.Reply(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("composing reply: %w", err)
	}

	remoteID, err := d.platform.PostAction(ctx, st.Credentials(), domain.TaskTypeRespond, task.TargetID, text)
	if err != nil {
		return Result{Message: text}, fmt.Errorf("posting reply: %w", err)
	}
	return Result{Performed: true, RemoteID: remoteID, Message: text}, nil
}

func (d *Dispatcher) seed(ctx context.Context, st *tenant.State, task domain.Task) (Result, error) {
	post, err := d.item(ctx, st, task.TargetID)
	if err != nil {
		return Result{}, err
	}

	text, err := d.writer.Opening(ctx, brain.OpeningInput{
		Tenant:    st.Profile,
		Post:      post,
		Container: d.container(ctx, st, task.TargetID),
	})
	if err != nil {
		return Result{}, fmt.Errorf("composing opening comment: %w", err)
	}

	remoteID, err := d.platform.PostAction(ctx, st.Credentials(), domain.TaskTypeSeed, task.TargetID, text)
	if err != nil {
		return Result{Message: text}, fmt.Errorf("posting opening comment: %w", err)
	}
	return Result{Performed: true, RemoteID: remoteID, Message: text}, nil
}

// item prefers the copy admission fetched.
func (d *Dispatcher) item(ctx context.Context, st *tenant.State, itemID string) (domain.Item, error) {
	if item, ok := st.CachedItem(itemID); ok {
		return item, nil
	}
	item, err := d.platform.FetchItem(ctx, st.Credentials(), itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("fetching %s: %w", itemID, err)
	}
	st.CacheItem(item)
	return item, nil
}

// container is best effort: a reply without post context is still a reply.
func (d *Dispatcher) container(ctx context.Context, st *tenant.State, postID string) domain.Container {
	c, err := d.platform.FetchContainer(ctx, st.Credentials(), postID)
	if err != nil {
		slog.WarnContext(ctx, "post context unavailable", "post_id", postID, "error", err)
		return domain.Container{}
	}
	return c
}

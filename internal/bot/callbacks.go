package bot

import (
	"context"

	"focusbot/internal/tasks"
	"focusbot/internal/ui"
)

const addFiveSeconds = 5 * 60

func (r *Router) cbStart(ctx context.Context, req *Request) error {
	st, err := r.timers.Start(ctx, req.User.ID, req.TaskID, &req.Ref)
	if err != nil {
		return err
	}
	r.out.Edit(ctx, req.Ref, ui.Progress(st.Task, st.Task.SpentSeconds))
	return nil
}

func (r *Router) cbResume(ctx context.Context, req *Request) error {
	st, err := r.timers.Resume(ctx, req.User.ID, req.TaskID, &req.Ref)
	if err != nil {
		return err
	}
	r.out.Edit(ctx, req.Ref, ui.Progress(st.Task, st.Task.SpentSeconds))
	return nil
}

func (r *Router) cbPause(ctx context.Context, req *Request) error {
	total, task, err := r.timers.Pause(ctx, req.User.ID, req.TaskID)
	if err != nil {
		return err
	}
	r.out.Edit(ctx, req.Ref, ui.Paused(task, total))
	return nil
}

func (r *Router) cbComplete(ctx context.Context, req *Request) error {
	c, err := r.timers.Complete(ctx, req.User.ID, req.TaskID)
	if err != nil {
		return err
	}
	r.out.Edit(ctx, req.Ref, ui.Completed(c.Task, c.Total))
	return nil
}

func (r *Router) cbAddFive(ctx context.Context, req *Request) error {
	st, err := r.timers.Extend(ctx, req.User.ID, req.TaskID, addFiveSeconds, &req.Ref)
	if err != nil {
		return err
	}
	r.out.Edit(ctx, req.Ref, ui.Progress(st.Task, st.Task.SpentSeconds))
	return nil
}

func (r *Router) cbExtend(ctx context.Context, req *Request) error {
	task, err := r.repo.GetTask(ctx, req.User.ID, req.TaskID)
	if err != nil {
		return err
	}
	r.pending.clear(req.ChatID)
	r.out.Edit(ctx, req.Ref, ui.ExtendOffer(task))
	return nil
}

// cbExtendAdd arms the prompt; the chat's next text is the amount.
func (r *Router) cbExtendAdd(ctx context.Context, req *Request) error {
	if _, err := r.repo.GetTask(ctx, req.User.ID, req.TaskID); err != nil {
		return err
	}
	r.pending.set(req.ChatID, req.TaskID, r.now())
	r.out.Edit(ctx, req.Ref, ui.Plain(ui.AskMinutes))
	return nil
}

func (r *Router) cbList(ctx context.Context, req *Request) error {
	list, err := r.repo.ListTasksForDate(ctx, req.User.ID, tasks.Today(r.now(), req.Loc))
	if err != nil {
		return err
	}
	r.out.Edit(ctx, req.Ref, ui.Today(list))
	return nil
}

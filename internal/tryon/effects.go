package tryon

import (
	"context"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/metrics"
	"tryon-studio/internal/prompt"
	"tryon-studio/internal/session"
)

// start runs jobs in the background. Each job owns its result only while its
// version is current; later inputs supersede it.
func (s *Service) start(sess *session.Session, jobs []session.Job) {
	for _, job := range jobs {
		s.wg.Add(1)
		go func(job session.Job) {
			defer s.wg.Done()
			s.run(sess, job)
		}(job)
	}
}

func (s *Service) run(sess *session.Session, job session.Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.effectTimeout)
	defer cancel()

	log := s.logger.With("session", sess.ID, "effect", string(job.Effect), "version", job.Version)

	var applied bool
	var failed bool
	switch job.Effect {
	case session.EffectBackground:
		img, err := s.provider.RemoveBackground(ctx, job.Input)
		if err != nil {
			failed = true
			log.Warn("background removal failed", "err", err)
			applied = sess.CompleteBackground(job, nil, (&ProviderError{Op: opBackground, Err: err}).Error())
			break
		}
		img.Name = "processed_" + job.Input.Name
		img.MIMEType = imaging.MIMETypePNG
		applied = sess.CompleteBackground(job, &img, "")

	case session.EffectClothing, session.EffectStyle:
		instruction, op := prompt.ClothingInstruction, opClothing
		if job.Effect == session.EffectStyle {
			instruction, op = prompt.StyleInstruction, opStyle
		}
		text, err := s.provider.Describe(ctx, job.Input, instruction)
		notice := ""
		if err != nil {
			failed = true
			log.Warn("image analysis failed", "err", err)
			notice = (&ProviderError{Op: op, Err: err}).Error()
		}
		applied = sess.CompleteDescription(job, text, notice)
	}

	switch {
	case !applied:
		log.Debug("dropping superseded result")
		metrics.RecordEffect(string(job.Effect), metrics.StatusSuperseded)
	case failed:
		metrics.RecordEffect(string(job.Effect), metrics.StatusError)
	default:
		metrics.RecordEffect(string(job.Effect), metrics.StatusSuccess)
	}
}

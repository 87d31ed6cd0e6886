package tryon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tryon-studio/internal/gemini"
	"tryon-studio/internal/imaging"
	"tryon-studio/internal/metrics"
	"tryon-studio/internal/session"
	"tryon-studio/internal/storage"
)

// Generate validates the session, normalises the user, clothing and style
// images to the selected aspect ratio concurrently and sends one compose
// request. Nothing is retried; ctx bounds the whole call.
func (s *Service) Generate(ctx context.Context, id string) (imaging.Image, error) {
	sess, err := s.session(id)
	if err != nil {
		return imaging.Image{}, err
	}

	gen, err := sess.BeginGeneration(buildPrompt)
	if err != nil {
		return imaging.Image{}, err
	}

	log := s.logger.With("session", id, "aspect_ratio", gen.Options.AspectRatio)
	log.Info("generation started", "style_reference", gen.Style != nil)

	img, err := s.generate(ctx, gen)
	metrics.RecordGeneration(err)
	if err != nil {
		log.Error("generation failed", "err", err)
		sess.FinishGeneration(gen, nil, err.Error())
		return imaging.Image{}, err
	}

	if !sess.FinishGeneration(gen, &img, "") {
		log.Info("session reset during generation, result dropped")
		return imaging.Image{}, ErrSuperseded
	}

	look, err := s.looks.SaveLook(ctx, storage.Look{
		SessionID: id,
		Prompt:    gen.Prompt,
		Options:   gen.Options,
		MIMEType:  img.MIMEType,
		Data:      img.Data,
	})
	if err != nil {
		log.Warn("saving look failed", "err", err)
	} else {
		log.Info("generation finished", "look", look.ID, "bytes", len(img.Data))
	}
	return img, nil
}

func (s *Service) generate(ctx context.Context, gen session.Generation) (imaging.Image, error) {
	ratio := gen.Options.AspectRatio

	var user, clothing imaging.Image
	var styleRef *imaging.Image

	var g errgroup.Group
	g.Go(func() error {
		out, err := imaging.Normalize(gen.User, ratio)
		if err != nil {
			return fmt.Errorf("format user image: %w", err)
		}
		user = out
		return nil
	})
	g.Go(func() error {
		out, err := imaging.Normalize(gen.Clothing, ratio)
		if err != nil {
			return fmt.Errorf("format clothing image: %w", err)
		}
		clothing = out
		return nil
	})
	if gen.Style != nil {
		g.Go(func() error {
			out, err := imaging.Normalize(*gen.Style, ratio)
			if err != nil {
				return fmt.Errorf("format style image: %w", err)
			}
			styleRef = &out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return imaging.Image{}, err
	}

	img, err := s.provider.ComposeTryOn(ctx, gemini.TryOnRequest{
		User:        user,
		Clothing:    clothing,
		Style:       styleRef,
		Prompt:      gen.Prompt,
		AspectRatio: ratio,
	})
	if err != nil {
		return imaging.Image{}, &ProviderError{Op: opGenerate, Err: err}
	}
	if img.Empty() {
		return imaging.Image{}, &ProviderError{Op: opGenerate, Err: gemini.ErrNoImage}
	}
	return img, nil
}

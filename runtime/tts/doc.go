// Package tts provides text-to-speech services for turning agent replies into
// audio the player can stream.
//
// The OpenAI implementation asks for raw 16-bit mono PCM at 24kHz so audio
// can be paced frame by frame without a decoder:
//
//	service := tts.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
//	pcm, err := service.Synthesize(ctx, "One moment please.", tts.DefaultSynthesisConfig())
//	if err != nil {
//	    return err
//	}
//	defer pcm.Close()
package tts

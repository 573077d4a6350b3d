package provider

import config "github.com/crosspost-labs/crosspost/configs"

func NewRegistry(cfg config.Config) Registry {
	return Registry{
		Twitter:   NewTwitter(cfg.Twitter),
		Instagram: NewInstagram(cfg.Instagram),
		Facebook:  NewFacebook(cfg.Facebook),
		Linkedin:  NewLinkedin(cfg.Linkedin),
	}
}
